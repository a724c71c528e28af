package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegister_Idempotent(t *testing.T) {
	RegisterPipelineMetrics()
	RegisterPipelineMetrics()
	RegisterEmbeddingMetrics()
	RegisterEmbeddingMetrics()

	before := testutil.ToFloat64(DocumentsProcessedTotal.WithLabelValues("invoices", "indexed"))
	DocumentsProcessedTotal.WithLabelValues("invoices", "indexed").Inc()
	if got := testutil.ToFloat64(DocumentsProcessedTotal.WithLabelValues("invoices", "indexed")); got != before+1 {
		t.Errorf("documents_processed_total = %v, want %v", got, before+1)
	}
}
