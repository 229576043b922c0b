package comparer

import (
	"encoding/json"

	"github.com/google/go-cmp/cmp"
)

// JSONRawMessage compara json.RawMessage ignorando a ordem das chaves.
// nil e "{}" são equivalentes: o banco grava metadata vazio como objeto vazio.
func JSONRawMessage() cmp.Option {
	return cmp.Comparer(func(x, y json.RawMessage) bool {
		xObj, xOk := decodeJSON(x)
		yObj, yOk := decodeJSON(y)
		if !xOk || !yOk {
			return false
		}
		return cmp.Equal(xObj, yObj)
	})
}

func decodeJSON(raw json.RawMessage) (interface{}, bool) {
	if len(raw) == 0 {
		return map[string]interface{}{}, true
	}

	var obj interface{}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, false
	}
	return obj, true
}
