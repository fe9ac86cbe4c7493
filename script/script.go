package script

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/diegoholiveira/jsonlogic"
	"github.com/pkg/errors"

	"github.com/relloyd/etl-engine/constants"
)

// Evaluator runs condition and loop scripts against a map of named values.
type Evaluator interface {
	Language() string
	Validate(code string) error
	Evaluate(code string, data map[string]interface{}) (interface{}, error)
}

// JsonLogic evaluates rules written in JSON Logic.
type JsonLogic struct{}

func (j JsonLogic) Language() string {
	return constants.ScriptLanguageJsonLogic
}

func (j JsonLogic) Validate(code string) error {
	if !jsonlogic.IsValid(strings.NewReader(code)) {
		return fmt.Errorf("invalid %v rule: %v", j.Language(), code)
	}
	return nil
}

// Evaluate applies the rule in code to data and returns the decoded JSON result.
func (j JsonLogic) Evaluate(code string, data map[string]interface{}) (interface{}, error) {
	if data == nil {
		data = map[string]interface{}{}
	}
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, errors.Wrap(err, "error marshalling data before applying JSON logic")
	}
	var result bytes.Buffer
	if err = jsonlogic.Apply(strings.NewReader(code), bytes.NewReader(jsonData), &result); err != nil {
		return nil, errors.Wrap(err, "error applying JSON logic")
	}
	var retval interface{}
	if strings.TrimSpace(result.String()) == "" {
		return nil, nil
	}
	if err = json.Unmarshal(result.Bytes(), &retval); err != nil {
		return nil, errors.Wrapf(err, "unexpected JSON logic result %q", result.String())
	}
	return retval, nil
}

// IsTruthy follows JSON Logic truthiness: false, null, 0, "" and empty arrays are false.
func IsTruthy(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	case []interface{}:
		return len(x) > 0
	}
	return true
}

// EvaluateBool runs code and returns the truthiness of its result.
func EvaluateBool(e Evaluator, code string, data map[string]interface{}) (bool, error) {
	v, err := e.Evaluate(code, data)
	if err != nil {
		return false, err
	}
	return IsTruthy(v), nil
}

var (
	mu         sync.RWMutex
	evaluators = map[string]Evaluator{
		constants.ScriptLanguageJsonLogic: JsonLogic{},
	}
)

// Register adds or replaces the evaluator for its language.
func Register(e Evaluator) {
	mu.Lock()
	defer mu.Unlock()
	evaluators[e.Language()] = e
}

// Get returns the evaluator for language; an empty language means JSON Logic.
func Get(language string) (Evaluator, error) {
	if language == "" {
		language = constants.ScriptLanguageJsonLogic
	}
	mu.RLock()
	defer mu.RUnlock()
	e, ok := evaluators[strings.ToLower(language)]
	if !ok {
		return nil, fmt.Errorf("unknown script language %q", language)
	}
	return e, nil
}
