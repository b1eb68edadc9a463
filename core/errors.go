package core

import "errors"

// Consensus-level rejection reasons. A transaction failing one of these is
// invalid for inclusion; it never executes and changes no state, unlike a
// VM failure which consumes gas inside a valid transaction.
var (
	// ErrNonceTooLow is returned when the transaction nonce is below the
	// account's current nonce.
	ErrNonceTooLow = errors.New("nonce too low")

	// ErrNonceTooHigh is returned when the transaction nonce is above the
	// account's current nonce.
	ErrNonceTooHigh = errors.New("nonce too high")

	// ErrNonceMax is returned when the account nonce would wrap around.
	ErrNonceMax = errors.New("nonce has max value")

	// ErrSenderNoEOA is returned when the sender account carries code
	// (EIP-3607).
	ErrSenderNoEOA = errors.New("sender not an eoa")

	// ErrInsufficientFunds is returned when the sender cannot cover the
	// worst-case cost of the transaction: gas limit times fee cap plus
	// value plus blob fees.
	ErrInsufficientFunds = errors.New("insufficient funds for gas * price + value")

	// ErrInsufficientFundsForTransfer is returned when the value alone
	// exceeds the sender balance after gas purchase.
	ErrInsufficientFundsForTransfer = errors.New("insufficient funds for transfer")

	// ErrIntrinsicGas is returned when the gas limit does not cover the
	// intrinsic cost of the transaction.
	ErrIntrinsicGas = errors.New("intrinsic gas too low")

	// ErrGasUintOverflow is returned when gas arithmetic overflows uint64.
	ErrGasUintOverflow = errors.New("gas uint64 overflow")

	// ErrFeeCapTooLow is returned when the fee cap is below the block's
	// base fee (EIP-1559).
	ErrFeeCapTooLow = errors.New("max fee per gas less than block base fee")

	// ErrTipAboveFeeCap is returned when the priority fee exceeds the fee
	// cap.
	ErrTipAboveFeeCap = errors.New("max priority fee per gas higher than max fee per gas")

	// ErrMaxInitCodeSizeExceeded is returned when a creation transaction
	// carries initcode above the EIP-3860 limit.
	ErrMaxInitCodeSizeExceeded = errors.New("max initcode size exceeded")

	// ErrBlobFeeCapTooLow is returned when the blob fee cap is below the
	// block's blob base fee (EIP-4844).
	ErrBlobFeeCapTooLow = errors.New("max fee per blob gas less than block blob gas fee")

	// ErrMissingBlobHashes is returned for a blob transaction without
	// blob hashes.
	ErrMissingBlobHashes = errors.New("blob transaction missing blob hashes")

	// ErrBlobTxCreate is returned for a blob transaction with no
	// recipient; blob transactions cannot create contracts.
	ErrBlobTxCreate = errors.New("blob transaction of type create")
)
