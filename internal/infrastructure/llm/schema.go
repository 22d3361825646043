package llm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

var ErrSchemaMismatch = errors.New("model output is missing mandatory fields")

const outcomeSchema = `{
  "type": "object",
  "required": ["analysis"],
  "properties": {
    "job": {"type": "object"},
    "analysis": {
      "type": "object",
      "required": ["fit_score", "recommended_resume"],
      "properties": {
        "fit_score": {"type": ["number", "string"]},
        "recommended_resume": {"type": "string", "minLength": 1}
      }
    }
  }
}`

var outcomeSchemaLoader = gojsonschema.NewStringLoader(outcomeSchema)

func validateOutcome(doc []byte) error {
	res, err := gojsonschema.Validate(outcomeSchemaLoader, gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%w: %s", ErrSchemaMismatch, strings.Join(msgs, "; "))
}
