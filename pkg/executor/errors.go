package executor

import (
	"fmt"
	"strings"
)

// knownSelectors maps custom error selectors of the router to their names.
// SwapRequestParametersMismatch in particular means the stored parameter set
// did not match what was sent, the usual sign that the request has not been
// verified on the destination chain yet.
var knownSelectors = map[string]string{
	"0xc4fec7e0": "SwapRequestParametersMismatch",
}

// dataError is the go-ethereum rpc error carrying revert data.
type dataError interface {
	error
	ErrorData() interface{}
}

// decodeRevert extracts a known custom-error name from a failed call or
// transaction error. Empty when nothing is recognized.
func decodeRevert(err error) string {
	if err == nil {
		return ""
	}
	var payloads []string
	if de, ok := err.(dataError); ok {
		payloads = append(payloads, fmt.Sprintf("%v", de.ErrorData()))
	}
	payloads = append(payloads, err.Error())

	for _, payload := range payloads {
		payload = strings.ToLower(payload)
		for selector, name := range knownSelectors {
			if strings.Contains(payload, selector) {
				return name
			}
		}
	}
	return ""
}
