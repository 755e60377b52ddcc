package render

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hitoshi/cardfeed/internal/interaction"
	"github.com/hitoshi/cardfeed/internal/metrics"
)

// ErrUnknownCard は描画されていないカードへのジェスチャーを表す。
var ErrUnknownCard = errors.New("unknown card")

// Presenter は閲覧者のBoardに対するジェスチャーを処理し、
// リンクを開く結果になった場合はLinkOpenerを呼び出す。
type Presenter struct {
	board    *interaction.Board
	opener   interaction.LinkOpener
	recorder metrics.Recorder
}

// NewPresenter はPresenterを生成する。openerがnilの場合はリンクを開かない。
func NewPresenter(board *interaction.Board, opener interaction.LinkOpener, recorder metrics.Recorder) *Presenter {
	if recorder == nil {
		recorder = metrics.Discard
	}
	return &Presenter{board: board, opener: opener, recorder: recorder}
}

// Gesture はカードキーで指定されたカードにイベントを適用する。
// カードが描画済みでない場合はErrUnknownCardを返す。
func (p *Presenter) Gesture(ctx context.Context, key string, ev interaction.Event) (interaction.Outcome, error) {
	outcome, ok := p.board.Handle(key, ev)
	if !ok {
		return interaction.Outcome{}, ErrUnknownCard
	}

	p.recorder.RecordGesture(string(ev.Type), string(outcome.State))
	if outcome.Changed {
		slog.DebugContext(ctx, "card state changed",
			slog.String("card_key", key),
			slog.String("event", string(ev.Type)),
			slog.String("state", string(outcome.State)),
		)
	}

	if outcome.OpenURL != "" && p.opener != nil {
		p.opener.Open(outcome.OpenURL)
	}
	return outcome, nil
}
