package validate

import (
	"bufio"
	"bytes"
	_ "embed"
	"fmt"
	"sync"

	"github.com/kaptinlin/jsonschema"
)

//go:embed policycheck_result.schema.json
var checkResultSchemaJSON []byte

var checkResultSchema struct {
	once   sync.Once
	schema *jsonschema.Schema
	err    error
}

// CheckResultSchema compiles the embedded check-result schema once and caches
// it for every later validation.
func CheckResultSchema() (*jsonschema.Schema, error) {
	checkResultSchema.once.Do(func() {
		checkResultSchema.schema, checkResultSchema.err = CompileSchema(checkResultSchemaJSON)
	})
	return checkResultSchema.schema, checkResultSchema.err
}

// ValidateCheckResult validates one serialized check result against the
// embedded schema.
func ValidateCheckResult(data []byte) error {
	schema, err := CheckResultSchema()
	if err != nil {
		return err
	}
	return validateJSON(schema, data)
}

func CompileSchema(schemaData []byte) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	schema, err := compiler.Compile(schemaData)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

func ValidateJSON(schemaData, data []byte) error {
	schema, err := CompileSchema(schemaData)
	if err != nil {
		return err
	}
	return validateJSON(schema, data)
}

// ValidateJSONL validates each non-empty line of a JSONL stream, reporting
// the first failing line number.
func ValidateJSONL(schemaData, data []byte) error {
	schema, err := CompileSchema(schemaData)
	if err != nil {
		return err
	}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		record := bytes.TrimSpace(scanner.Bytes())
		if len(record) == 0 {
			continue
		}
		if err := validateJSON(schema, record); err != nil {
			return fmt.Errorf("jsonl line %d: %w", line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read jsonl: %w", err)
	}
	return nil
}

func validateJSON(schema *jsonschema.Schema, data []byte) error {
	result := schema.ValidateJSON(data)
	if result.IsValid() {
		return nil
	}
	return fmt.Errorf("schema validation failed: %v", result.Errors)
}
