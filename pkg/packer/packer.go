package packer

import (
	"fmt"
	"reflect"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// PackEvent packs an event struct against its abi.Event definition,
// returning the log topics (event id first, then indexed fields) and the
// packed non-indexed data. Struct field names must match the camel-cased
// event input names.
func PackEvent(eventStruct any, event abi.Event) (topics []common.Hash, data []byte, err error) {
	if eventStruct == nil {
		return nil, nil, errors.New("event struct is nil")
	}
	// references: https://medium.com/mycrypto/understanding-event-logs-on-the-ethereum-blockchain-f4ae7ba50378
	var noIndexedArgs []any
	topicArgs := [][]any{
		{event.ID},
	}
	v := reflect.ValueOf(eventStruct).Elem()
	for _, input := range event.Inputs {
		if !input.Indexed {
			noIndexedArgs = append(noIndexedArgs, v.FieldByName(abi.ToCamelCase(input.Name)).Interface())
		} else {
			topicArgs = append(topicArgs, []any{v.FieldByName(abi.ToCamelCase(input.Name)).Interface()})
		}
	}

	rawTopics, err := abi.MakeTopics(topicArgs...)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "event %s make topics error", event.Name)
	}

	packedData, err := event.Inputs.NonIndexed().Pack(noIndexedArgs...)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "event %s pack args error", event.Name)
	}

	return lo.Map(rawTopics, func(t []common.Hash, i int) common.Hash {
		return t[0]
	}), packedData, nil
}

type RevertError struct {
	Err error

	// Data is encoded reverted reason, or result
	Data []byte

	// reverted result
	Str string
}

func (e *RevertError) Error() string {
	return fmt.Sprintf("%s errdata %s", e.Err.Error(), e.Str)
}

func PackError(errStruct any, abiErr abi.Error) error {
	if errStruct == nil {
		return errors.New("error struct is nil")
	}
	selector := common.CopyBytes(abiErr.ID.Bytes()[:4])
	var args []any
	v := reflect.ValueOf(errStruct).Elem()
	for _, input := range abiErr.Inputs {
		args = append(args, v.FieldByName(abi.ToCamelCase(input.Name)).Interface())
	}
	packed, err := abiErr.Inputs.Pack(args...)
	if err != nil {
		return err
	}

	return &RevertError{
		Err:  vm.ErrExecutionReverted,
		Data: append(selector, packed...),
		Str:  fmt.Sprintf("%s, args: %v", abiErr.String(), args),
	}
}
