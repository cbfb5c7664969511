package escrow

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// escrowABI is the read-only surface of the escrow contract. Deposits and
// releases are executed by the escrow platform; the gateway only reads state.
const escrowABI = `[
	{"type":"function","name":"isFunded","stateMutability":"view","inputs":[{"name":"ref","type":"bytes32"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"depositedAmount","stateMutability":"view","inputs":[{"name":"ref","type":"bytes32"}],"outputs":[{"name":"","type":"uint256"}]}
]`

// EthClient reads escrow funding state over JSON-RPC.
type EthClient struct {
	client   *ethclient.Client
	contract *bind.BoundContract
	abi      abi.ABI
	address  common.Address
}

type EthClientConfig struct {
	RPCURL          string
	ContractAddress string
}

func NewEthClient(ctx context.Context, cfg EthClientConfig) (*EthClient, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	if cfg.ContractAddress == "" {
		return nil, fmt.Errorf("escrow contract address is required")
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("invalid escrow contract address: %s", cfg.ContractAddress)
	}

	cli, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	parsedABI, err := abi.JSON(strings.NewReader(escrowABI))
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}

	address := common.HexToAddress(cfg.ContractAddress)
	bound := bind.NewBoundContract(address, parsedABI, cli, cli, cli)

	return &EthClient{
		client:   cli,
		contract: bound,
		abi:      parsedABI,
		address:  address,
	}, nil
}

func (c *EthClient) CheckFunding(ctx context.Context, contractID string) (FundingStatus, error) {
	if strings.TrimSpace(contractID) == "" {
		return FundingStatus{}, fmt.Errorf("contract reference required")
	}

	ref := toBytes32(contractID)
	opts := &bind.CallOpts{Context: ctx}

	var fundedOut []any
	if err := c.contract.Call(opts, &fundedOut, "isFunded", ref); err != nil {
		return FundingStatus{}, fmt.Errorf("isFunded call: %w", err)
	}
	funded, ok := fundedOut[0].(bool)
	if !ok {
		return FundingStatus{}, fmt.Errorf("unexpected isFunded result type %T", fundedOut[0])
	}

	var amountOut []any
	if err := c.contract.Call(opts, &amountOut, "depositedAmount", ref); err != nil {
		return FundingStatus{}, fmt.Errorf("depositedAmount call: %w", err)
	}
	amount, ok := amountOut[0].(*big.Int)
	if !ok {
		return FundingStatus{}, fmt.Errorf("unexpected depositedAmount result type %T", amountOut[0])
	}

	return FundingStatus{
		ContractID:   contractID,
		Funded:       funded,
		DepositedWei: amount.String(),
	}, nil
}

func (c *EthClient) Ping(ctx context.Context) error {
	if c.client == nil {
		return fmt.Errorf("rpc client not configured")
	}
	_, err := c.client.BlockNumber(ctx)
	return err
}

// Close releases the underlying RPC connection.
func (c *EthClient) Close() {
	if c.client != nil {
		c.client.Close()
	}
}

func toBytes32(value string) [32]byte {
	var out [32]byte
	if strings.HasPrefix(value, "0x") && len(value) == 66 {
		copy(out[:], common.HexToHash(value).Bytes())
		return out
	}
	copy(out[:], []byte(value))
	return out
}
