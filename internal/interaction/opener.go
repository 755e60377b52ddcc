package interaction

// LinkOpener は外部リンクを開くコラボレーターのインターフェース。
// 呼び出しは投げっぱなしで、結果は観測しない。
type LinkOpener interface {
	Open(url string)
}
