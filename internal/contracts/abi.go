package contracts

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const flowSplitterFactoryABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "contract ISuperToken", "name": "superToken", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "flowSplitter", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "flowSplitterCreator", "type": "address"},
      {"indexed": false, "internalType": "address", "name": "mainReceiver", "type": "address"},
      {"indexed": false, "internalType": "address", "name": "sideReceiver", "type": "address"},
      {"indexed": false, "internalType": "int96", "name": "sideReceiverPortion", "type": "int96"},
      {"indexed": false, "internalType": "int96", "name": "mainReceiverPortion", "type": "int96"}
    ],
    "name": "FlowSplitterCreated",
    "type": "event"
  }
]`

const flowSplitterABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "int96", "name": "mainReceiverPortion", "type": "int96"},
      {"indexed": false, "internalType": "int96", "name": "newSideReceiverPortion", "type": "int96"}
    ],
    "name": "SplitUpdated",
    "type": "event"
  }
]`

const cfaABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "contract ISuperfluidToken", "name": "token", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "sender", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "receiver", "type": "address"},
      {"indexed": false, "internalType": "int96", "name": "flowRate", "type": "int96"},
      {"indexed": false, "internalType": "int256", "name": "totalSenderFlowRate", "type": "int256"},
      {"indexed": false, "internalType": "int256", "name": "totalReceiverFlowRate", "type": "int256"},
      {"indexed": false, "internalType": "bytes", "name": "userData", "type": "bytes"}
    ],
    "name": "FlowUpdated",
    "type": "event"
  }
]`

var (
	factoryABI     abi.ABI
	factoryABIOnce sync.Once
	factoryABIErr  error

	splitterABI     abi.ABI
	splitterABIOnce sync.Once
	splitterABIErr  error

	cfaABI     abi.ABI
	cfaABIOnce sync.Once
	cfaABIErr  error
)

// FlowSplitterFactoryABI returns the parsed factory ABI.
func FlowSplitterFactoryABI() (abi.ABI, error) {
	factoryABIOnce.Do(func() {
		factoryABI, factoryABIErr = abi.JSON(strings.NewReader(flowSplitterFactoryABIJSON))
	})
	return factoryABI, factoryABIErr
}

// FlowSplitterABI returns the parsed splitter ABI.
func FlowSplitterABI() (abi.ABI, error) {
	splitterABIOnce.Do(func() {
		splitterABI, splitterABIErr = abi.JSON(strings.NewReader(flowSplitterABIJSON))
	})
	return splitterABI, splitterABIErr
}

// CFAABI returns the parsed constant flow agreement ABI.
func CFAABI() (abi.ABI, error) {
	cfaABIOnce.Do(func() {
		cfaABI, cfaABIErr = abi.JSON(strings.NewReader(cfaABIJSON))
	})
	return cfaABI, cfaABIErr
}
