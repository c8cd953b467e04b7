package main

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Session is the wallet side of the gateway: one account key bound to one RPC
// endpoint. It is passed explicitly to everything that reads role-gated state
// or signs transactions, so independent sessions can coexist in tests.
type Session struct {
	client     *ethclient.Client
	privateKey *ecdsa.PrivateKey
	account    common.Address
	chainID    *big.Int
}

// Connect dials the RPC endpoint, parses the hex private key and records the
// endpoint's chain id. An expectChainID of 0 accepts whatever the endpoint
// reports; otherwise a mismatch is an error so transactions are never signed
// for the wrong chain.
func Connect(ctx context.Context, rpcURL, hexKey string, expectChainID int64) (*Session, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	pub, ok := key.Public().(*ecdsa.PublicKey)
	if !ok {
		client.Close()
		return nil, fmt.Errorf("derive public key")
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("query chain id: %w", err)
	}
	if expectChainID != 0 && chainID.Int64() != expectChainID {
		client.Close()
		return nil, fmt.Errorf("endpoint is chain %d, expected %d", chainID, expectChainID)
	}

	return &Session{
		client:     client,
		privateKey: key,
		account:    crypto.PubkeyToAddress(*pub),
		chainID:    chainID,
	}, nil
}

func (s *Session) Close() {
	s.client.Close()
}

// Account returns the address derived from the session key.
func (s *Session) Account() common.Address {
	return s.account
}

func (s *Session) ChainID() *big.Int {
	return new(big.Int).Set(s.chainID)
}

func (s *Session) Client() *ethclient.Client {
	return s.client
}

// TransactOpts builds signing options for one transaction. value may be nil
// for non-payable calls.
func (s *Session) TransactOpts(ctx context.Context, value *big.Int) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(s.privateKey, s.chainID)
	if err != nil {
		return nil, fmt.Errorf("build transactor: %w", err)
	}
	opts.Context = ctx
	opts.Value = value
	return opts, nil
}
