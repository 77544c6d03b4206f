package svc

import (
	"path/filepath"
	"testing"

	"github.com/Syoongy/sniffer/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const whirlpool = "whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc"

func TestBuildRegistry(t *testing.T) {
	var c config.Config
	c.DecoderConf.Programs = []config.ProgramConfig{
		{ID: whirlpool, IdlPath: filepath.Join("..", "idl", "testdata", "swap_program.json")},
	}
	c.DecoderConf.InnerWhitelist = []string{whirlpool}

	reg, err := BuildRegistry(c)
	require.NoError(t, err)
	assert.Equal(t, []string{whirlpool}, reg.IDs())
	assert.True(t, reg.Whitelist().Has(whirlpool))

	c.DecoderConf.Programs[0].IdlPath = "missing.json"
	_, err = BuildRegistry(c)
	assert.Error(t, err)
}
