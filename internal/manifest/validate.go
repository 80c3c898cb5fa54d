package manifest

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kubegate/kubegate/internal/yamltojson"
	"github.com/qri-io/jsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON []byte

var schema = func() *jsonschema.Schema {
	rs := &jsonschema.Schema{}
	if err := json.Unmarshal(schemaJSON, rs); err != nil {
		panic(fmt.Sprintf("embedded manifest schema is invalid: %v", err))
	}
	return rs
}()

// validate converts the YAML document to JSON and checks it against the
// manifest schema. Keyword errors report the property path of the offending
// value.
func validate(doc *yaml.Node) error {
	var buf bytes.Buffer
	if err := yamltojson.Encode(&buf, doc); err != nil {
		return fmt.Errorf("converting manifest to JSON: %w", err)
	}

	keyErrs, err := schema.ValidateBytes(context.Background(), buf.Bytes())
	if err != nil {
		return fmt.Errorf("validating manifest: %w", err)
	}
	if len(keyErrs) == 0 {
		return nil
	}

	msgs := make([]string, 0, len(keyErrs))
	for _, ke := range keyErrs {
		msgs = append(msgs, ke.Error())
	}
	return fmt.Errorf("manifest does not match schema: %s", strings.Join(msgs, "; "))
}
