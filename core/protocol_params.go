package core

// Transaction-level gas parameters. Per-opcode prices live with the VM;
// these cover the intrinsic cost charged before a single byte of code runs.
const (
	TxGas                 uint64 = 21000 // per transaction not creating a contract
	TxGasContractCreation uint64 = 53000 // per transaction that creates a contract, from Homestead

	TxDataZeroGas            uint64 = 4  // per zero byte of call data
	TxDataNonZeroGasFrontier uint64 = 68 // per non-zero byte of call data
	TxDataNonZeroGasEIP2028  uint64 = 16 // per non-zero byte from Istanbul

	TxAccessListAddressGas    uint64 = 2400 // per address in an EIP-2930 access list
	TxAccessListStorageKeyGas uint64 = 1900 // per storage key in an EIP-2930 access list
)
