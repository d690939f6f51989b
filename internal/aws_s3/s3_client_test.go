package aws_s3

import (
	"strings"
	"testing"

	"github.com/IliaW/site-auditor/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportKey(t *testing.T) {
	key, err := reportKey("reports", &model.AuditReport{ID: "run-1", SiteURL: "https://shop.test"})
	require.NoError(t, err)
	parts := strings.Split(key, "/")
	require.Len(t, parts, 4)
	assert.Equal(t, "reports", parts[0])
	assert.Equal(t, "shop.test", parts[1])
	assert.Len(t, parts[2], 64)
	assert.Equal(t, "run-1.json", parts[3])

	same, err := reportKey("reports", &model.AuditReport{ID: "run-2", SiteURL: "https://shop.test/"})
	require.NoError(t, err)
	assert.Equal(t, parts[2], strings.Split(same, "/")[2])

	_, err = reportKey("reports", &model.AuditReport{ID: "run-3", SiteURL: "shop.test"})
	assert.Error(t, err)
}
