package youthcenter

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"policy_sync/internal/domain"
)

const ymdLayout = "20060102"

// Parser normalizes raw Open API payloads into core domain records.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

// Parse maps one landing record's raw payload into a policy, its eligibility
// constraints and the categorical values to resolve against the master tables.
func (p *Parser) Parse(rec *domain.LandingRecord) (*domain.Policy, *domain.Eligibility, domain.TaxonomyValues, error) {
	var payload policyPayload
	if err := json.Unmarshal(rec.RawJSON, &payload); err != nil {
		return nil, nil, nil, fmt.Errorf("decode policy payload: %w", err)
	}

	if payload.PlcyNo == "" {
		return nil, nil, nil, fmt.Errorf("payload has no policy id")
	}
	if payload.PlcyNo != rec.PolicyID {
		return nil, nil, nil, fmt.Errorf("payload policy id %q does not match record %q", payload.PlcyNo, rec.PolicyID)
	}

	applyStart, applyEnd := parseApplyWindow(payload.AplyYmd)

	policy := &domain.Policy{
		SourceID:       SourceID,
		ExternalID:     payload.PlcyNo,
		Title:          payload.PlcyNm,
		Description:    payload.PlcyExplnCn,
		SupportContent: payload.PlcySprtCn,
		ApplyStart:     applyStart,
		ApplyEnd:       applyEnd,
		ViewCount:      payload.InqCnt,
		SupervisingOrg: payload.SprvsnInstNm,
		OperatingOrg:   payload.OperInstNm,
		ApplyURL:       payload.AplyURLAddr,
		RefURL1:        payload.RefURLAddr1,
		RefURL2:        payload.RefURLAddr2,
		ContentHash:    rec.RecordHash,
		RawJSON:        rec.RawJSON,
	}

	elig := &domain.Eligibility{
		MaritalStatus:  payload.MrgSttsCd,
		MinAge:         parseIntPtr(payload.SprtTrgtMinAge),
		MaxAge:         parseIntPtr(payload.SprtTrgtMaxAge),
		IncomeType:     payload.EarnCndSeCd,
		IncomeMin:      parseInt64Ptr(payload.EarnMinAmt),
		IncomeMax:      parseInt64Ptr(payload.EarnMaxAmt),
		IncomeText:     payload.EarnEtcCn,
		AdditionalInfo: payload.AddAplyQlfcCn,
		Restriction:    payload.PtcpPrpTrgtCn,
	}

	values := domain.TaxonomyValues{}
	addValues(values, domain.KindRegion, payload.ZipCd)
	addValues(values, domain.KindCategory, payload.LclsfNm)
	addValues(values, domain.KindCategory, payload.MclsfNm)
	addValues(values, domain.KindKeyword, payload.PlcyKywdNm)
	addValues(values, domain.KindEducation, payload.SchoolCd)
	addValues(values, domain.KindMajor, payload.PlcyMajorCd)
	addValues(values, domain.KindJobStatus, payload.JobCd)
	addValues(values, domain.KindSpecialization, payload.SBizCd)

	return policy, elig, values, nil
}

// addValues splits a comma-separated field into trimmed values, skipping
// blanks and duplicates already collected for the kind.
func addValues(values domain.TaxonomyValues, kind domain.TaxonomyKind, field *string) {
	if field == nil {
		return
	}
	for _, part := range strings.Split(*field, ",") {
		v := strings.TrimSpace(part)
		if v == "" {
			continue
		}
		if contains(values[kind], v) {
			continue
		}
		values[kind] = append(values[kind], v)
	}
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// parseApplyWindow parses the "20240101 ~ 20241231" application window.
// Open-ended or free-text windows ("상시" etc.) yield nil dates.
func parseApplyWindow(field *string) (*time.Time, *time.Time) {
	if field == nil {
		return nil, nil
	}

	parts := strings.SplitN(*field, "~", 2)
	var start, end *time.Time

	if t := parseYmd(parts[0]); t != nil {
		start = t
	}
	if len(parts) == 2 {
		if t := parseYmd(parts[1]); t != nil {
			end = t
		}
	}

	return start, end
}

func parseYmd(s string) *time.Time {
	s = strings.TrimSpace(s)
	if len(s) != len(ymdLayout) {
		return nil
	}
	t, err := time.Parse(ymdLayout, s)
	if err != nil {
		return nil
	}
	return &t
}

func parseIntPtr(s *string) *int {
	if s == nil {
		return nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(*s))
	if err != nil {
		return nil
	}
	return &v
}

func parseInt64Ptr(s *string) *int64 {
	if s == nil {
		return nil
	}
	v, err := strconv.ParseInt(strings.TrimSpace(*s), 10, 64)
	if err != nil {
		return nil
	}
	return &v
}
