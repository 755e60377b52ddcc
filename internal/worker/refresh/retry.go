package refresh

import "time"

const (
	// initialBackoff は指数バックオフの初回遅延（30秒）。
	initialBackoff = 30 * time.Second
	// maxBackoff は指数バックオフの最大遅延（30分）。
	maxBackoff = 30 * time.Minute
)

// CalculateBackoff は連続エラー回数に基づいて指数バックオフ遅延を計算する。
// 初回30秒、2倍ずつ増加、最大30分。
func CalculateBackoff(consecutiveErrors int) time.Duration {
	delay := initialBackoff
	for i := 0; i < consecutiveErrors; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// backoffState はフィード取得の連続失敗状態。
type backoffState struct {
	consecutiveErrors int
	nextAttemptAt     time.Time
	lastError         string
}

// fail は連続エラー回数をインクリメントし、次回試行時刻を設定する。
func (s *backoffState) fail(now time.Time, reason string) time.Duration {
	s.consecutiveErrors++
	s.lastError = reason
	delay := CalculateBackoff(s.consecutiveErrors - 1)
	s.nextAttemptAt = now.Add(delay)
	return delay
}

// succeed は取得成功時に状態をリセットする。
func (s *backoffState) succeed() {
	s.consecutiveErrors = 0
	s.lastError = ""
	s.nextAttemptAt = time.Time{}
}

// waiting はnowがバックオフ期間中かを返す。
func (s *backoffState) waiting(now time.Time) bool {
	return now.Before(s.nextAttemptAt)
}
