package feed

import "fmt"

// Outcome はHTTPステータスコードに基づく取得結果の分類。
type Outcome int

const (
	// OutcomeOK は取得成功（200）。
	OutcomeOK Outcome = iota
	// OutcomeNotModified はコンテンツ未変更（304）。
	OutcomeNotModified
	// OutcomeRejected はリトライしても回復しないステータス（404/410/401/403）。
	OutcomeRejected
	// OutcomeBackoff はバックオフが必要なステータス（429/5xx）。
	OutcomeBackoff
	// OutcomeUnknown は未知のステータスコード。
	OutcomeUnknown
)

// String はログ・メトリクス用の名前を返す。
func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeNotModified:
		return "not_modified"
	case OutcomeRejected:
		return "rejected"
	case OutcomeBackoff:
		return "backoff"
	default:
		return "unknown"
	}
}

// ClassifyHTTPStatus はHTTPステータスコードを取得結果に分類する。
func ClassifyHTTPStatus(statusCode int) Outcome {
	switch {
	case statusCode == 200:
		return OutcomeOK
	case statusCode == 304:
		return OutcomeNotModified
	case statusCode == 404 || statusCode == 410:
		return OutcomeRejected
	case statusCode == 401 || statusCode == 403:
		return OutcomeRejected
	case statusCode == 429:
		return OutcomeBackoff
	case statusCode >= 500:
		return OutcomeBackoff
	default:
		return OutcomeUnknown
	}
}

// StatusError は200/304以外のHTTPステータスを表すエラー。
type StatusError struct {
	StatusCode int
	Outcome    Outcome
}

// Error はerrorインターフェースを実装する。
func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected http status %d (%s)", e.StatusCode, e.Outcome)
}
