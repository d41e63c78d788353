package youthcenter

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"policy_sync/internal/domain"
)

func fullPayload() json.RawMessage {
	return json.RawMessage(`{
		"plcyNo": "R2024052421021",
		"plcyNm": "청년 주거 지원",
		"plcyExplnCn": "주거비 부담 완화를 위한 지원 정책",
		"plcySprtCn": "월 20만원 지원",
		"aplyYmd": "20240101 ~ 20241231",
		"inqCnt": 1523,
		"sprvsnInstCdNm": "국토교통부",
		"operInstCdNm": "주택도시기금",
		"aplyUrlAddr": "https://example.com/apply",
		"refUrlAddr1": "https://example.com/ref",
		"lclsfNm": "주거",
		"mclsfNm": "주택공급,전월세",
		"plcyKywdNm": "대출, 주거지원",
		"zipCd": "11000,26000",
		"schoolCd": "0049001,0049002",
		"plcyMajorCd": "0011001",
		"jobCd": "0013001",
		"sBizCd": "0014001",
		"mrgSttsCd": "55001",
		"sprtTrgtMinAge": "19",
		"sprtTrgtMaxAge": "34",
		"earnCndSeCd": "0043002",
		"earnMinAmt": "0",
		"earnMaxAmt": "2400000",
		"earnEtcCn": "중위소득 150% 이하",
		"addAplyQlfcCndCn": "무주택자",
		"ptcpPrpTrgtCn": "기수혜자 제외"
	}`)
}

func TestParser_Parse(t *testing.T) {
	parser := NewParser()

	rec := &domain.LandingRecord{
		PolicyID:   "R2024052421021",
		RecordHash: "abc123",
		RawJSON:    fullPayload(),
	}

	policy, elig, values, err := parser.Parse(rec)
	require.NoError(t, err)

	assert.Equal(t, SourceID, policy.SourceID)
	assert.Equal(t, "R2024052421021", policy.ExternalID)
	assert.Equal(t, "청년 주거 지원", policy.Title)
	assert.Equal(t, "주거비 부담 완화를 위한 지원 정책", *policy.Description)
	assert.Equal(t, "월 20만원 지원", *policy.SupportContent)
	assert.Equal(t, int64(1523), policy.ViewCount)
	assert.Equal(t, "국토교통부", *policy.SupervisingOrg)
	assert.Equal(t, "abc123", policy.ContentHash)
	assert.JSONEq(t, string(fullPayload()), string(policy.RawJSON))

	require.NotNil(t, policy.ApplyStart)
	require.NotNil(t, policy.ApplyEnd)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), *policy.ApplyStart)
	assert.Equal(t, time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), *policy.ApplyEnd)

	assert.Equal(t, 19, *elig.MinAge)
	assert.Equal(t, 34, *elig.MaxAge)
	assert.Equal(t, "0043002", *elig.IncomeType)
	assert.Equal(t, int64(0), *elig.IncomeMin)
	assert.Equal(t, int64(2400000), *elig.IncomeMax)
	assert.Equal(t, "55001", *elig.MaritalStatus)
	assert.Equal(t, "무주택자", *elig.AdditionalInfo)

	assert.Equal(t, []string{"11000", "26000"}, values[domain.KindRegion])
	assert.Equal(t, []string{"주거", "주택공급", "전월세"}, values[domain.KindCategory])
	assert.Equal(t, []string{"대출", "주거지원"}, values[domain.KindKeyword])
	assert.Equal(t, []string{"0049001", "0049002"}, values[domain.KindEducation])
	assert.Equal(t, []string{"0011001"}, values[domain.KindMajor])
	assert.Equal(t, []string{"0013001"}, values[domain.KindJobStatus])
	assert.Equal(t, []string{"0014001"}, values[domain.KindSpecialization])
}

func TestParser_Parse_MinimalPayload(t *testing.T) {
	parser := NewParser()

	rec := &domain.LandingRecord{
		PolicyID:   "P1",
		RecordHash: "h1",
		RawJSON:    json.RawMessage(`{"plcyNo":"P1","plcyNm":"Youth Grant"}`),
	}

	policy, elig, values, err := parser.Parse(rec)
	require.NoError(t, err)

	assert.Equal(t, "Youth Grant", policy.Title)
	assert.Nil(t, policy.Description)
	assert.Nil(t, policy.ApplyStart)
	assert.Nil(t, elig.MinAge)
	assert.Empty(t, values)
}

func TestParser_Parse_OpenEndedWindow(t *testing.T) {
	parser := NewParser()

	rec := &domain.LandingRecord{
		PolicyID: "P1",
		RawJSON:  json.RawMessage(`{"plcyNo":"P1","plcyNm":"t","aplyYmd":"상시"}`),
	}

	policy, _, _, err := parser.Parse(rec)
	require.NoError(t, err)
	assert.Nil(t, policy.ApplyStart)
	assert.Nil(t, policy.ApplyEnd)
}

func TestParser_Parse_DeduplicatesValues(t *testing.T) {
	parser := NewParser()

	rec := &domain.LandingRecord{
		PolicyID: "P1",
		RawJSON:  json.RawMessage(`{"plcyNo":"P1","plcyNm":"t","zipCd":"11000, 11000 ,26000"}`),
	}

	_, _, values, err := parser.Parse(rec)
	require.NoError(t, err)
	assert.Equal(t, []string{"11000", "26000"}, values[domain.KindRegion])
}

func TestParser_Parse_IDMismatch(t *testing.T) {
	parser := NewParser()

	rec := &domain.LandingRecord{
		PolicyID: "P2",
		RawJSON:  json.RawMessage(`{"plcyNo":"P1","plcyNm":"t"}`),
	}

	_, _, _, err := parser.Parse(rec)
	assert.Error(t, err)
}

func TestParser_Parse_MalformedPayload(t *testing.T) {
	parser := NewParser()

	rec := &domain.LandingRecord{
		PolicyID: "P1",
		RawJSON:  json.RawMessage(`{"plcyNo":`),
	}

	_, _, _, err := parser.Parse(rec)
	assert.Error(t, err)
}
