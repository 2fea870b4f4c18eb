package factory

import (
	"encoding/json"

	"github.com/fagemx/edda/internal/types"
)

func jsonMarshal(e *types.Event) ([]byte, error) {
	return json.Marshal(e)
}
