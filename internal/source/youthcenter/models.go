package youthcenter

import "encoding/json"

// apiResponse mirrors the Open API envelope. Policy entries are kept as raw
// JSON so the content hash is computed over the payload exactly as received.
type apiResponse struct {
	ResultCode    int    `json:"resultCode"`
	ResultMessage string `json:"resultMessage"`
	Result        struct {
		Paging   pageInfo          `json:"pagging"`
		Policies []json.RawMessage `json:"youthPolicyList"`
	} `json:"result"`
}

type pageInfo struct {
	TotalCount int `json:"totCount"`
	PageNum    int `json:"pageNum"`
	PageSize   int `json:"pageSize"`
}

// policyKey is the minimal decode used to pull the external id out of a
// raw policy entry.
type policyKey struct {
	PlcyNo string `json:"plcyNo"`
}

// policyPayload is the subset of Open API fields the parser normalizes into
// the core schema. Everything the API sends stays available in the raw JSON.
type policyPayload struct {
	PlcyNo         string  `json:"plcyNo"`
	PlcyNm         string  `json:"plcyNm"`
	PlcyExplnCn    *string `json:"plcyExplnCn"`
	PlcySprtCn     *string `json:"plcySprtCn"`
	AplyYmd        *string `json:"aplyYmd"`
	InqCnt         int64   `json:"inqCnt"`
	SprvsnInstNm   *string `json:"sprvsnInstCdNm"`
	OperInstNm     *string `json:"operInstCdNm"`
	AplyURLAddr    *string `json:"aplyUrlAddr"`
	RefURLAddr1    *string `json:"refUrlAddr1"`
	RefURLAddr2    *string `json:"refUrlAddr2"`
	LclsfNm        *string `json:"lclsfNm"`
	MclsfNm        *string `json:"mclsfNm"`
	PlcyKywdNm     *string `json:"plcyKywdNm"`
	ZipCd          *string `json:"zipCd"`
	SchoolCd       *string `json:"schoolCd"`
	PlcyMajorCd    *string `json:"plcyMajorCd"`
	JobCd          *string `json:"jobCd"`
	SBizCd         *string `json:"sBizCd"`
	MrgSttsCd      *string `json:"mrgSttsCd"`
	SprtTrgtMinAge *string `json:"sprtTrgtMinAge"`
	SprtTrgtMaxAge *string `json:"sprtTrgtMaxAge"`
	EarnCndSeCd    *string `json:"earnCndSeCd"`
	EarnMinAmt     *string `json:"earnMinAmt"`
	EarnMaxAmt     *string `json:"earnMaxAmt"`
	EarnEtcCn      *string `json:"earnEtcCn"`
	AddAplyQlfcCn  *string `json:"addAplyQlfcCndCn"`
	PtcpPrpTrgtCn  *string `json:"ptcpPrpTrgtCn"`
}
