// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// DefaultConfirmTimeout bounds the wait for a receipt when Config leaves it
// unset.
const DefaultConfirmTimeout = 2 * time.Minute

type Config struct {
	RPCURL          string
	ContractAddress string
	// SignerKey is the hex-encoded secp256k1 key of the election authority.
	SignerKey      string
	ConfirmTimeout time.Duration
}

// EthClient talks to the voting contract over JSON-RPC.
type EthClient struct {
	rpc            *ethclient.Client
	contract       *bind.BoundContract
	signer         *bind.TransactOpts
	confirmTimeout time.Duration

	// sendMu serializes signing and sending so concurrent submissions never
	// pick the same pending nonce. Waiting for confirmation happens outside it.
	sendMu sync.Mutex
}

var _ Client = (*EthClient)(nil)

// Dial connects to the RPC endpoint and binds the contract.
func Dial(ctx context.Context, cfg Config) (*EthClient, error) {
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("invalid contract address %q", cfg.ContractAddress)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.SignerKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid signer key: %w", err)
	}

	rpc, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial ledger: %w", err)
	}
	chainID, err := rpc.ChainID(ctx)
	if err != nil {
		rpc.Close()
		return nil, fmt.Errorf("failed to read chain id: %w", err)
	}
	signer, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		rpc.Close()
		return nil, fmt.Errorf("failed to build transactor: %w", err)
	}

	timeout := cfg.ConfirmTimeout
	if timeout <= 0 {
		timeout = DefaultConfirmTimeout
	}

	address := common.HexToAddress(cfg.ContractAddress)
	slog.Info("ledger connected", "chain_id", chainID, "contract", address.Hex(), "signer", signer.From.Hex())

	return &EthClient{
		rpc:            rpc,
		contract:       bind.NewBoundContract(address, contractABI, rpc, rpc, rpc),
		signer:         signer,
		confirmTimeout: timeout,
	}, nil
}

func (c *EthClient) Close() {
	c.rpc.Close()
}

func (c *EthClient) CreateElection(ctx context.Context, title string) (Receipt, error) {
	return c.submit(ctx, "createElection", title)
}

func (c *EthClient) AddCandidate(ctx context.Context, electionID uint64, name string) (Receipt, error) {
	return c.submit(ctx, "addCandidate", bigID(electionID), name)
}

func (c *EthClient) StartElection(ctx context.Context, electionID uint64) (Receipt, error) {
	return c.submit(ctx, "startElection", bigID(electionID))
}

func (c *EthClient) EndElection(ctx context.Context, electionID uint64) (Receipt, error) {
	return c.submit(ctx, "endElection", bigID(electionID))
}

func (c *EthClient) VoteWithSignature(ctx context.Context, electionID, candidateID uint64, voter common.Address, signature []byte) (Receipt, error) {
	return c.submit(ctx, "voteWithSignature", bigID(electionID), bigID(candidateID), voter, signature)
}

// submit sends a transaction and waits for its receipt. Gas is estimated
// before sending, so a call the contract would revert is rejected without
// spending a fee.
func (c *EthClient) submit(ctx context.Context, method string, args ...any) (Receipt, error) {
	c.sendMu.Lock()
	opts := *c.signer
	opts.Context = ctx
	tx, err := c.contract.Transact(&opts, method, args...)
	c.sendMu.Unlock()
	if err != nil {
		return Receipt{}, &TxError{Op: method, Err: fmt.Errorf("%w: %v", ErrRejected, err)}
	}

	txRef := tx.Hash().Hex()
	slog.Info("ledger transaction submitted", "op", method, "tx", txRef)

	waitCtx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	// WaitMined only returns an error once its context is done.
	rcpt, err := bind.WaitMined(waitCtx, c.rpc, tx)
	if err != nil {
		slog.Warn("ledger confirmation not observed", "op", method, "tx", txRef, "error", err)
		return Receipt{}, &TxError{Op: method, TxRef: txRef, Err: fmt.Errorf("%w: %v", ErrIndeterminate, err)}
	}
	if rcpt.Status != types.ReceiptStatusSuccessful {
		return Receipt{}, &TxError{Op: method, TxRef: txRef, Err: fmt.Errorf("%w: transaction reverted in block %v", ErrRejected, rcpt.BlockNumber)}
	}

	slog.Info("ledger transaction confirmed", "op", method, "tx", txRef, "block", rcpt.BlockNumber)
	return Receipt{TxRef: txRef, Confirmed: true, Logs: rcpt.Logs}, nil
}

func (c *EthClient) call(ctx context.Context, method string, args ...any) ([]any, error) {
	var out []any
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, fmt.Errorf("ledger %s: %w", method, err)
	}
	return out, nil
}

func (c *EthClient) ElectionCount(ctx context.Context) (uint64, error) {
	out, err := c.call(ctx, "electionCount")
	if err != nil {
		return 0, err
	}
	return toUint64(out[0]), nil
}

func (c *EthClient) GetElection(ctx context.Context, electionID uint64) (ElectionInfo, error) {
	out, err := c.call(ctx, "elections", bigID(electionID))
	if err != nil {
		return ElectionInfo{}, err
	}
	return ElectionInfo{
		ID:             toUint64(out[0]),
		Title:          *abi.ConvertType(out[1], new(string)).(*string),
		Started:        *abi.ConvertType(out[2], new(bool)).(*bool),
		Ended:          *abi.ConvertType(out[3], new(bool)).(*bool),
		CandidateCount: toUint64(out[4]),
	}, nil
}

func (c *EthClient) IsElectionStarted(ctx context.Context, electionID uint64) (bool, error) {
	return c.callBool(ctx, "isElectionStarted", bigID(electionID))
}

func (c *EthClient) IsElectionEnded(ctx context.Context, electionID uint64) (bool, error) {
	return c.callBool(ctx, "isElectionEnded", bigID(electionID))
}

func (c *EthClient) IsAdmin(ctx context.Context, addr common.Address) (bool, error) {
	return c.callBool(ctx, "admins", addr)
}

func (c *EthClient) GetCandidate(ctx context.Context, electionID, candidateID uint64) (string, uint64, error) {
	out, err := c.call(ctx, "getCandidate", bigID(electionID), bigID(candidateID))
	if err != nil {
		return "", 0, err
	}
	return *abi.ConvertType(out[0], new(string)).(*string), toUint64(out[1]), nil
}

func (c *EthClient) GetElectionCandidates(ctx context.Context, electionID uint64) ([]CandidateInfo, error) {
	out, err := c.call(ctx, "getElectionCandidates", bigID(electionID))
	if err != nil {
		return nil, err
	}
	ids := *abi.ConvertType(out[0], new([]*big.Int)).(*[]*big.Int)
	names := *abi.ConvertType(out[1], new([]string)).(*[]string)
	addrs := *abi.ConvertType(out[2], new([]common.Address)).(*[]common.Address)
	votes := *abi.ConvertType(out[3], new([]*big.Int)).(*[]*big.Int)
	if len(names) != len(ids) || len(addrs) != len(ids) || len(votes) != len(ids) {
		return nil, errors.New("ledger getElectionCandidates: column lengths differ")
	}

	candidates := make([]CandidateInfo, len(ids))
	for i := range ids {
		candidates[i] = CandidateInfo{
			ID:        ids[i].Uint64(),
			Name:      names[i],
			Address:   addrs[i],
			VoteCount: votes[i].Uint64(),
		}
	}
	return candidates, nil
}

func (c *EthClient) GetVoter(ctx context.Context, electionID uint64, voter common.Address) (VoterInfo, error) {
	out, err := c.call(ctx, "getVoter", bigID(electionID), voter)
	if err != nil {
		return VoterInfo{}, err
	}
	return VoterInfo{
		HasVoted:    *abi.ConvertType(out[0], new(bool)).(*bool),
		CandidateID: toUint64(out[1]),
	}, nil
}

func (c *EthClient) callBool(ctx context.Context, method string, args ...any) (bool, error) {
	out, err := c.call(ctx, method, args...)
	if err != nil {
		return false, err
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

func bigID(id uint64) *big.Int {
	return new(big.Int).SetUint64(id)
}

func toUint64(v any) uint64 {
	return (*abi.ConvertType(v, new(*big.Int)).(**big.Int)).Uint64()
}
