// Package handler decodes CTF Exchange and Conditional Tokens contract
// events out of raw EVM logs into the domain structs in pkg/models.
package handler

import (
	"context"
	"fmt"
	"math/big"

	"github.com/0xkanth/polymarket-indexer/pkg/models"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// CTF Exchange event signatures.
var (
	// OrderFilled(bytes32 indexed orderHash, address indexed maker, address indexed taker,
	//             uint256 makerAssetId, uint256 takerAssetId, uint256 makerAmountFilled,
	//             uint256 takerAmountFilled, uint256 fee)
	OrderFilledSig = common.HexToHash("0xd0a08e8c493f9c94f29311604c9de1b4e8c8d4c06bd0c789af57f2d65bfec0f6")

	// OrderCancelled(bytes32 indexed orderHash)
	OrderCancelledSig = common.HexToHash("0x5152abf959f6564662358c2e52b702259b78bac5ee7842a0f01937e670efcc7d")

	// TokenRegistered(uint256 indexed token0, uint256 indexed token1, bytes32 indexed conditionId)
	TokenRegisteredSig = common.HexToHash("0xbc9a2432e8aeb48327246cddd6e872ef452812b4243c04e6bfb786a2cd8faf0d")
)

// Conditional Tokens event signatures.
var (
	// TransferSingle(address indexed operator, address indexed from, address indexed to,
	//                uint256 id, uint256 value)
	TransferSingleSig = common.HexToHash("0xc3d58168c5ae7397731d063d5bbf3d657854427343f4c083240f7aacaa2d0f62")

	// TransferBatch(address indexed operator, address indexed from, address indexed to,
	//               uint256[] ids, uint256[] values)
	TransferBatchSig = common.HexToHash("0x4a39dc06d4c0dbc64b70af90fd698a233a518aa5d07e595d983b8c0526c8f7fb")

	// ConditionPreparation(bytes32 indexed conditionId, address indexed oracle,
	//                       bytes32 indexed questionId, uint256 outcomeSlotCount)
	ConditionPreparationSig = common.HexToHash("0xab3760c3bd2bb38b5bcf54dc79802ed67338b4cf29f3054ded67ed24661e4177")

	// ConditionResolution(bytes32 indexed conditionId, address indexed oracle,
	//                      bytes32 indexed questionId, uint256 outcomeSlotCount, uint256[] payoutNumerators)
	ConditionResolutionSig = common.HexToHash("0xb44d84d3289691f71497564b85d4233648d9dbae8cbdbb4329f301c3a0185894")

	// PositionSplit(address indexed stakeholder, address collateralToken,
	//               bytes32 indexed parentCollectionId, bytes32 indexed conditionId,
	//               uint256[] partition, uint256 amount)
	PositionSplitSig = common.HexToHash("0x2e6bb91f8cbcda0c93623c54d0403a43514fabc40084ec96b6d5379a74786298")

	// PositionsMerge(address indexed stakeholder, address collateralToken,
	//                bytes32 indexed parentCollectionId, bytes32 indexed conditionId,
	//                uint256[] partition, uint256 amount)
	PositionsMergeSig = common.HexToHash("0x6f13ca62553fcc2bcd2372180a43949c1e4cebba603901ede2f4e14f36b282ca")
)

// wantTopics checks a log carries exactly n topics (signature plus indexed
// args), the shape every handler below expects before touching log.Topics.
func wantTopics(eventName string, log types.Log, n int) error {
	if len(log.Topics) != n {
		return fmt.Errorf("invalid %s event: expected %d topics, got %d", eventName, n, len(log.Topics))
	}
	return nil
}

var (
	addressTy, _      = abi.NewType("address", "", nil)
	uint256Ty, _      = abi.NewType("uint256", "", nil)
	uint256ArrayTy, _ = abi.NewType("uint256[]", "", nil)
)

// unpackCollateralMovement decodes the (address collateralToken,
// uint256[] partition, uint256 amount) data tuple PositionSplit and
// PositionsMerge both carry.
func unpackCollateralMovement(eventName string, data []byte) (collateralToken string, partition []*big.Int, amount *big.Int, err error) {
	args := abi.Arguments{
		{Type: addressTy},
		{Type: uint256ArrayTy},
		{Type: uint256Ty},
	}
	unpacked, err := args.Unpack(data)
	if err != nil {
		return "", nil, nil, fmt.Errorf("failed to unpack %s data: %w", eventName, err)
	}
	return unpacked[0].(common.Address).Hex(), unpacked[1].([]*big.Int), unpacked[2].(*big.Int), nil
}

// HandleOrderFilled processes OrderFilled events from CTF Exchange.
func HandleOrderFilled(_ context.Context, log types.Log, _ uint64) (any, error) {
	if err := wantTopics("OrderFilled", log, 4); err != nil {
		return nil, err
	}

	orderHash := log.Topics[1].Hex()
	maker := common.BytesToAddress(log.Topics[2].Bytes()).Hex()
	taker := common.BytesToAddress(log.Topics[3].Bytes()).Hex()

	// makerAssetId, takerAssetId, makerAmountFilled, takerAmountFilled, fee
	if len(log.Data) < 160 {
		return nil, fmt.Errorf("invalid OrderFilled data length: %d", len(log.Data))
	}

	return models.OrderFilled{
		OrderHash:         orderHash,
		Maker:             maker,
		Taker:             taker,
		MakerAssetID:      new(big.Int).SetBytes(log.Data[0:32]),
		TakerAssetID:      new(big.Int).SetBytes(log.Data[32:64]),
		MakerAmountFilled: new(big.Int).SetBytes(log.Data[64:96]),
		TakerAmountFilled: new(big.Int).SetBytes(log.Data[96:128]),
		Fee:               new(big.Int).SetBytes(log.Data[128:160]),
	}, nil
}

// HandleOrderCancelled processes OrderCancelled events from CTF Exchange.
func HandleOrderCancelled(_ context.Context, log types.Log, _ uint64) (any, error) {
	if err := wantTopics("OrderCancelled", log, 2); err != nil {
		return nil, err
	}
	return models.OrderCancelled{OrderHash: log.Topics[1].Hex()}, nil
}

// HandleTokenRegistered processes TokenRegistered events from CTF Exchange.
func HandleTokenRegistered(_ context.Context, log types.Log, _ uint64) (any, error) {
	if err := wantTopics("TokenRegistered", log, 4); err != nil {
		return nil, err
	}
	return models.TokenRegistered{
		Token0:      new(big.Int).SetBytes(log.Topics[1].Bytes()),
		Token1:      new(big.Int).SetBytes(log.Topics[2].Bytes()),
		ConditionID: log.Topics[3].Hex(),
	}, nil
}

// HandleTransferSingle processes TransferSingle events from Conditional Tokens.
func HandleTransferSingle(_ context.Context, log types.Log, _ uint64) (any, error) {
	if err := wantTopics("TransferSingle", log, 4); err != nil {
		return nil, err
	}

	if len(log.Data) < 64 {
		return nil, fmt.Errorf("invalid TransferSingle data length: %d", len(log.Data))
	}

	return models.TransferSingle{
		Operator: common.BytesToAddress(log.Topics[1].Bytes()).Hex(),
		From:     common.BytesToAddress(log.Topics[2].Bytes()).Hex(),
		To:       common.BytesToAddress(log.Topics[3].Bytes()).Hex(),
		TokenID:  new(big.Int).SetBytes(log.Data[0:32]),
		Amount:   new(big.Int).SetBytes(log.Data[32:64]),
	}, nil
}

// HandleTransferBatch processes TransferBatch events from Conditional Tokens.
func HandleTransferBatch(_ context.Context, log types.Log, _ uint64) (any, error) {
	if err := wantTopics("TransferBatch", log, 4); err != nil {
		return nil, err
	}

	args := abi.Arguments{{Type: uint256ArrayTy}, {Type: uint256ArrayTy}}
	unpacked, err := args.Unpack(log.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack TransferBatch data: %w", err)
	}

	return models.TransferBatch{
		Operator: common.BytesToAddress(log.Topics[1].Bytes()).Hex(),
		From:     common.BytesToAddress(log.Topics[2].Bytes()).Hex(),
		To:       common.BytesToAddress(log.Topics[3].Bytes()).Hex(),
		TokenIDs: unpacked[0].([]*big.Int),
		Amounts:  unpacked[1].([]*big.Int),
	}, nil
}

// HandleConditionPreparation processes ConditionPreparation events.
func HandleConditionPreparation(_ context.Context, log types.Log, _ uint64) (any, error) {
	if err := wantTopics("ConditionPreparation", log, 4); err != nil {
		return nil, err
	}
	if len(log.Data) < 32 {
		return nil, fmt.Errorf("invalid ConditionPreparation data length: %d", len(log.Data))
	}

	return models.ConditionPreparation{
		ConditionID:      log.Topics[1].Hex(),
		Oracle:           common.BytesToAddress(log.Topics[2].Bytes()).Hex(),
		QuestionID:       log.Topics[3].Hex(),
		OutcomeSlotCount: uint8(new(big.Int).SetBytes(log.Data[0:32]).Uint64()),
	}, nil
}

// HandleConditionResolution processes ConditionResolution events.
func HandleConditionResolution(_ context.Context, log types.Log, _ uint64) (any, error) {
	if err := wantTopics("ConditionResolution", log, 4); err != nil {
		return nil, err
	}

	args := abi.Arguments{{Type: uint256Ty}, {Type: uint256ArrayTy}}
	unpacked, err := args.Unpack(log.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack ConditionResolution data: %w", err)
	}

	return models.ConditionResolution{
		ConditionID:      log.Topics[1].Hex(),
		Oracle:           common.BytesToAddress(log.Topics[2].Bytes()).Hex(),
		QuestionID:       log.Topics[3].Hex(),
		OutcomeSlotCount: uint8(unpacked[0].(*big.Int).Uint64()),
		PayoutNumerators: unpacked[1].([]*big.Int),
	}, nil
}

// HandlePositionSplit processes PositionSplit events.
func HandlePositionSplit(_ context.Context, log types.Log, _ uint64) (any, error) {
	if err := wantTopics("PositionSplit", log, 4); err != nil {
		return nil, err
	}

	collateralToken, partition, amount, err := unpackCollateralMovement("PositionSplit", log.Data)
	if err != nil {
		return nil, err
	}

	return models.PositionSplit{
		Stakeholder:        common.BytesToAddress(log.Topics[1].Bytes()).Hex(),
		CollateralToken:    collateralToken,
		ParentCollectionID: log.Topics[2].Hex(),
		ConditionID:        log.Topics[3].Hex(),
		Partition:          partition,
		Amount:             amount,
	}, nil
}

// HandlePositionsMerge processes PositionsMerge events.
func HandlePositionsMerge(_ context.Context, log types.Log, _ uint64) (any, error) {
	if err := wantTopics("PositionsMerge", log, 4); err != nil {
		return nil, err
	}

	collateralToken, partition, amount, err := unpackCollateralMovement("PositionsMerge", log.Data)
	if err != nil {
		return nil, err
	}

	return models.PositionsMerge{
		Stakeholder:        common.BytesToAddress(log.Topics[1].Bytes()).Hex(),
		CollateralToken:    collateralToken,
		ParentCollectionID: log.Topics[2].Hex(),
		ConditionID:        log.Topics[3].Hex(),
		Partition:          partition,
		Amount:             amount,
	}, nil
}
