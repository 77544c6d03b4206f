package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.TxProcessed()
		m.TxRejected()
		m.Instruction("decoded")
		m.EventsDecoded(3)
		m.LogScanFailed()
		m.PublishFailed()
		m.ObserveBatch(0.1)
	})
}

func TestInit(t *testing.T) {
	m := Init()
	require.Same(t, m, Init())

	m.Instruction("not_anchor")
	m.TxProcessed()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "sniffer_transactions_processed_total"))
	assert.True(t, strings.Contains(body, `sniffer_instructions_total{kind="not_anchor"}`))
}
