package model

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"crowdfund-ledger/utils/generics/must"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const (
	EventProjectCreated        = "ProjectCreated"
	EventProjectStatusChanged  = "ProjectStatusChanged"
	EventInvestmentMade        = "InvestmentMade"
	EventInvestmentRefunded    = "InvestmentRefunded"
	EventRefundWithdrawn       = "RefundWithdrawn"
	EventInvestmentClaimed     = "InvestmentClaimed"
	EventRepaymentProcessed    = "RepaymentProcessed"
	EventRepaymentWithdrawn    = "RepaymentWithdrawn"
	EventEarningWithdrawn      = "EarningWithdrawn"
	EventSharesListed          = "SharesListed"
	EventListingStatusChanged  = "ListingStatusChanged"
	EventSharesBought          = "SharesBought"
	EventSaleEarningsWithdrawn = "SaleEarningsWithdrawn"
	EventConfigUpdated         = "ConfigUpdated"
)

var (
	ErrUnknownEvent = errors.New("unknown event")
)

const LedgerEventABIJson = `[
{"anonymous":false,"type":"event","name":"ProjectCreated","inputs":[{"indexed":true,"name":"projectId","type":"uint256"},{"indexed":true,"name":"creator","type":"address"},{"indexed":false,"name":"name","type":"string"},{"indexed":false,"name":"dealType","type":"uint8"},{"indexed":false,"name":"availableShare","type":"uint64"},{"indexed":false,"name":"pricePerShare","type":"uint256"},{"indexed":false,"name":"requestedFunding","type":"uint256"},{"indexed":false,"name":"minInvest","type":"uint256"},{"indexed":false,"name":"maxInvest","type":"uint256"},{"indexed":false,"name":"endDate","type":"uint64"},{"indexed":false,"name":"interestRate","type":"uint16"},{"indexed":false,"name":"termLength","type":"uint64"},{"indexed":false,"name":"repaymentDate","type":"uint64"},{"indexed":false,"name":"isFixed","type":"bool"},{"indexed":false,"name":"accreditedOnly","type":"bool"},{"indexed":false,"name":"frequency","type":"uint8"}]},
{"anonymous":false,"type":"event","name":"ProjectStatusChanged","inputs":[{"indexed":true,"name":"projectId","type":"uint256"},{"indexed":false,"name":"status","type":"uint8"}]},
{"anonymous":false,"type":"event","name":"InvestmentMade","inputs":[{"indexed":true,"name":"projectId","type":"uint256"},{"indexed":true,"name":"investor","type":"address"},{"indexed":false,"name":"amount","type":"uint256"},{"indexed":false,"name":"shares","type":"uint64"},{"indexed":false,"name":"signatureTimestamp","type":"uint64"}]},
{"anonymous":false,"type":"event","name":"InvestmentRefunded","inputs":[{"indexed":true,"name":"projectId","type":"uint256"},{"indexed":true,"name":"investor","type":"address"},{"indexed":false,"name":"amount","type":"uint256"},{"indexed":false,"name":"shares","type":"uint64"}]},
{"anonymous":false,"type":"event","name":"RefundWithdrawn","inputs":[{"indexed":true,"name":"projectId","type":"uint256"},{"indexed":true,"name":"investor","type":"address"},{"indexed":false,"name":"amount","type":"uint256"}]},
{"anonymous":false,"type":"event","name":"InvestmentClaimed","inputs":[{"indexed":true,"name":"projectId","type":"uint256"},{"indexed":true,"name":"creator","type":"address"},{"indexed":false,"name":"amount","type":"uint256"},{"indexed":false,"name":"platformFee","type":"uint256"},{"indexed":false,"name":"gatewayFee","type":"uint256"}]},
{"anonymous":false,"type":"event","name":"RepaymentProcessed","inputs":[{"indexed":true,"name":"projectId","type":"uint256"},{"indexed":false,"name":"amount","type":"uint256"},{"indexed":false,"name":"remaining","type":"uint256"},{"indexed":false,"name":"nextRepaymentDate","type":"uint64"},{"indexed":false,"name":"installment","type":"uint64"}]},
{"anonymous":false,"type":"event","name":"RepaymentWithdrawn","inputs":[{"indexed":true,"name":"projectId","type":"uint256"},{"indexed":true,"name":"investor","type":"address"},{"indexed":false,"name":"amount","type":"uint256"},{"indexed":false,"name":"fee","type":"uint256"},{"indexed":false,"name":"installments","type":"uint64"}]},
{"anonymous":false,"type":"event","name":"EarningWithdrawn","inputs":[{"indexed":true,"name":"owner","type":"address"},{"indexed":false,"name":"amount","type":"uint256"}]},
{"anonymous":false,"type":"event","name":"SharesListed","inputs":[{"indexed":true,"name":"ref","type":"bytes32"},{"indexed":true,"name":"seller","type":"address"},{"indexed":true,"name":"projectId","type":"uint256"},{"indexed":false,"name":"shares","type":"uint64"},{"indexed":false,"name":"pricePerShare","type":"uint256"},{"indexed":false,"name":"status","type":"uint8"}]},
{"anonymous":false,"type":"event","name":"ListingStatusChanged","inputs":[{"indexed":true,"name":"ref","type":"bytes32"},{"indexed":false,"name":"status","type":"uint8"},{"indexed":false,"name":"sharesReturned","type":"uint64"}]},
{"anonymous":false,"type":"event","name":"SharesBought","inputs":[{"indexed":true,"name":"ref","type":"bytes32"},{"indexed":true,"name":"buyer","type":"address"},{"indexed":false,"name":"quantity","type":"uint64"},{"indexed":false,"name":"cost","type":"uint256"},{"indexed":false,"name":"fee","type":"uint256"}]},
{"anonymous":false,"type":"event","name":"SaleEarningsWithdrawn","inputs":[{"indexed":true,"name":"ref","type":"bytes32"},{"indexed":true,"name":"seller","type":"address"},{"indexed":false,"name":"amount","type":"uint256"},{"indexed":false,"name":"fee","type":"uint256"}]},
{"anonymous":false,"type":"event","name":"ConfigUpdated","inputs":[{"indexed":true,"name":"by","type":"address"},{"indexed":false,"name":"field","type":"string"}]}
]`

var (
	LedgerEventABI = must.Must(abi.JSON(strings.NewReader(LedgerEventABIJson)))
)

// Event is a decoded ledger log.
type Event struct {
	Name   string
	Fields map[string]interface{}
}

// PackLog builds the log of the named event. Indexed values are passed as
// topics in declaration order, the remaining values as args.
func PackLog(address common.Address, name string, topics []common.Hash, args ...interface{}) (*types.Log, error) {
	event, exists := LedgerEventABI.Events[name]
	if !exists {
		return nil, fmt.Errorf("event '%s' not found", name)
	}
	data, err := event.Inputs.NonIndexed().Pack(args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack event %s: %w", name, err)
	}
	return &types.Log{
		Address: address,
		Topics:  append([]common.Hash{event.ID}, topics...),
		Data:    data,
	}, nil
}

func ParseEventLog(parsedAbi abi.ABI, eventName string, logData *types.Log) (map[string]interface{}, error) {
	event, exists := parsedAbi.Events[eventName]
	if !exists {
		return nil, fmt.Errorf("event '%s' not found", eventName)
	}

	var err error
	eventData := make(map[string]interface{})
	err = parsedAbi.UnpackIntoMap(eventData, eventName, logData.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack event data: %w", err)
	}

	var indexed abi.Arguments
	for _, arg := range event.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if len(logData.Topics) != len(indexed)+1 {
		return nil, fmt.Errorf("event '%s' expects %d topics, got %d", eventName, len(indexed)+1, len(logData.Topics))
	}
	if err = abi.ParseTopicsIntoMap(eventData, indexed, logData.Topics[1:]); err != nil {
		return nil, fmt.Errorf("failed to parse event topics: %w", err)
	}

	for k, v := range eventData {
		if b, ok := v.([32]byte); ok {
			eventData[k] = common.Hash(b)
		}
	}

	return eventData, nil
}

// DecodeLog identifies a ledger log by its first topic and decodes it.
func DecodeLog(logData *types.Log) (*Event, error) {
	if len(logData.Topics) == 0 {
		return nil, ErrUnknownEvent
	}
	event, err := LedgerEventABI.EventByID(logData.Topics[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, logData.Topics[0].Hex())
	}
	fields, err := ParseEventLog(LedgerEventABI, event.Name, logData)
	if err != nil {
		return nil, err
	}
	return &Event{Name: event.Name, Fields: fields}, nil
}

// Topic helpers for indexed event arguments.

func IDTopic(id uint64) common.Hash {
	return common.BigToHash(new(big.Int).SetUint64(id))
}

func AddressTopic(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}
