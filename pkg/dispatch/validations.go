package dispatch

import (
	"errors"
	"math/big"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/ethereum/go-ethereum/common"

	"github.com/multibridge/mma/pkg/protocol"
)

func validateDispatchRequest(req *DispatchRequest) error {
	return validation.ValidateStruct(req,
		validation.Field(&req.DstChainID, validation.Required.Error("dst chain id cannot be zero")),
		validation.Field(&req.Target, validation.By(nonZeroAddress)),
		validation.Field(&req.CallData, validation.Length(0, protocol.MaxCallDataSize)),
		validation.Field(&req.NativeValue, validation.By(nonNegativeValue)),
	)
}

func nonZeroAddress(value interface{}) error {
	addr, ok := value.(common.Address)
	if !ok {
		return errors.New("must be an address")
	}
	if addr == (common.Address{}) {
		return errors.New("cannot be the zero address")
	}
	return nil
}

func nonNegativeValue(value interface{}) error {
	amount, ok := value.(*big.Int)
	if !ok {
		return errors.New("must be a big integer")
	}
	if amount != nil && amount.Sign() < 0 {
		return errors.New("cannot be negative")
	}
	return nil
}
