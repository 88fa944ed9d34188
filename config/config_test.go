package config

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"go-bridge-quorum/model"
)

func TestParseDefaults(t *testing.T) {
	t.Setenv("BRIDGE_ADMIN", "")
	t.Setenv("MULTISIG_OWNERS", "")
	cfg, err := Parse()
	require.NoError(t, err)
	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, int32(10), cfg.MaxConnections)
	require.Equal(t, uint64(50), cfg.BridgeFeeBps)
	require.False(t, cfg.BridgeEnabled())
	require.False(t, cfg.MultisigEnabled())
}

func TestParseError(t *testing.T) {
	t.Setenv("BRIDGE_THRESHOLD", "two")
	_, err := Parse()
	require.ErrorContains(t, err, "parse env")
}

func TestBridgeConfig(t *testing.T) {
	t.Setenv("BRIDGE_ADMIN", "0x00000000000000000000000000000000000000ad")
	t.Setenv("BRIDGE_THRESHOLD", "2")
	t.Setenv("BRIDGE_VALIDATORS", "0x0000000000000000000000000000000000000001,0x0000000000000000000000000000000000000002")
	t.Setenv("BRIDGE_MAX_PER_TX", "0x64")
	t.Setenv("BRIDGE_FEE_COLLECTOR", "")

	cfg, err := Parse()
	require.NoError(t, err)
	require.True(t, cfg.BridgeEnabled())

	bc, err := cfg.Bridge()
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress("0xad"), bc.Admin)
	require.Equal(t, bc.Admin, bc.FeeCollector)
	require.Equal(t, uint64(2), bc.Threshold)
	require.Equal(t, []common.Address{common.HexToAddress("0x01"), common.HexToAddress("0x02")}, bc.Validators)
	require.Equal(t, uint64(100), bc.MaxPerTx.Uint64())
	require.Equal(t, "1000000000000000000", bc.MinPerTx.Dec())

	t.Setenv("BRIDGE_VALIDATORS", "0x01")
	cfg, err = Parse()
	require.NoError(t, err)
	_, err = cfg.Bridge()
	require.ErrorIs(t, err, model.ErrInvalidParameter)
	require.ErrorContains(t, err, "BRIDGE_VALIDATORS")
}

func TestWalletConfig(t *testing.T) {
	t.Setenv("MULTISIG_INITIATOR", "0x0000000000000000000000000000000000001717")
	t.Setenv("MULTISIG_OWNERS", "0x000000000000000000000000000000000000000a,0x000000000000000000000000000000000000000b")
	t.Setenv("MULTISIG_REQUIRED", "2")
	t.Setenv("MULTISIG_ADDRESS", "")

	cfg, err := Parse()
	require.NoError(t, err)
	require.True(t, cfg.MultisigEnabled())

	wc, err := cfg.Wallet()
	require.NoError(t, err)
	require.Len(t, wc.Owners, 2)
	require.Equal(t, uint64(2), wc.Required)
	require.Equal(t, model.WalletAddress(wc.Initiator, wc.Owners), wc.Address)
	require.NotEqual(t, common.Address{}, wc.Address)

	t.Setenv("MULTISIG_ADDRESS", "0x0000000000000000000000000000000000005afe")
	cfg, err = Parse()
	require.NoError(t, err)
	wc, err = cfg.Wallet()
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress("0x5afe"), wc.Address)
}
