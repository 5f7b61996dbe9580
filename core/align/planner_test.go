package align

import (
	"context"
	"errors"
	"math"
	"testing"

	"MiniMixLab/core/analysis"
	"MiniMixLab/core/timeline"
	"MiniMixLab/model"
)

type fakeResolver struct {
	tracks map[string]*model.SourceTrack
}

func (f *fakeResolver) GetByID(ctx context.Context, id string) (*model.SourceTrack, error) {
	return f.tracks[id], nil
}

type fakeSuggestions struct {
	alignCalls int
	align      map[string]analysis.AlignSuggestion
	alignErr   error
	pitch      map[string]int
	pitchErr   error
}

func (f *fakeSuggestions) AutoAlign(ctx context.Context, sourceIDs []string, targetBPM float64) (map[string]analysis.AlignSuggestion, error) {
	f.alignCalls++
	return f.align, f.alignErr
}

func (f *fakeSuggestions) AutoPitch(ctx context.Context, sourceIDs []string, projectKey string) (map[string]int, error) {
	return f.pitch, f.pitchErr
}

func analyzedSource(id string, bpm float64) *model.SourceTrack {
	return &model.SourceTrack{
		ID:          id,
		DisplayName: id + ".mp3",
		Analysis:    &model.TrackAnalysis{BPM: bpm, Key: "C"},
		Analyzed:    true,
	}
}

func newTestSession(t *testing.T) *timeline.Session {
	t.Helper()
	return timeline.NewSession("sess-1", 1, model.Project{BPM: 120, Key: "Am"}, nil)
}

func addPiece(t *testing.T, sess *timeline.Session, src *model.SourceTrack, start, end float64) model.Piece {
	t.Helper()
	piece, err := sess.AddPiece(src, model.Segment{Label: "chorus", StartSeconds: start, EndSeconds: end})
	if err != nil {
		t.Fatalf("AddPiece 出错: %v", err)
	}
	return piece
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestLineUpTempoFromSourceAnalysis(t *testing.T) {
	src := analyzedSource("src-100", 100)
	sess := newTestSession(t)
	addPiece(t, sess, src, 0, 10)
	addPiece(t, sess, src, 10, 20)

	p := NewPlanner(&fakeResolver{tracks: map[string]*model.SourceTrack{"src-100": src}}, &fakeSuggestions{})

	applied, err := p.LineUpTempo(context.Background(), sess, TempoOptions{})
	if err != nil {
		t.Fatalf("LineUpTempo 出错: %v", err)
	}
	if applied != 2 {
		t.Fatalf("期望写回2个片段, 实际 %d", applied)
	}

	for i, piece := range sess.Pieces() {
		if !almostEqual(piece.SpeedFactor, 1.2) {
			t.Errorf("片段 %d: 100bpm 对齐 120bpm 应得变速 1.2, 实际 %v", i, piece.SpeedFactor)
		}
	}
}

func TestLineUpTempoIdempotent(t *testing.T) {
	src := analyzedSource("src-100", 100)
	sess := newTestSession(t)
	addPiece(t, sess, src, 0, 10)

	p := NewPlanner(&fakeResolver{tracks: map[string]*model.SourceTrack{"src-100": src}}, &fakeSuggestions{})

	for i := 0; i < 3; i++ {
		if _, err := p.LineUpTempo(context.Background(), sess, TempoOptions{Quantize: true}); err != nil {
			t.Fatalf("第%d次 LineUpTempo 出错: %v", i+1, err)
		}
	}

	// 重复执行不累积漂移：变速和终点与单次执行一致
	piece := sess.Pieces()[0]
	if !almostEqual(piece.SpeedFactor, 1.2) {
		t.Errorf("重复对齐后变速应仍为 1.2, 实际 %v", piece.SpeedFactor)
	}
	if !almostEqual(piece.EndSeconds, 10) {
		t.Errorf("10s @120bpm 已是整拍, 终点应保持 10, 实际 %v", piece.EndSeconds)
	}
}

func TestLineUpTempoQuantizeMovesOnlyEnd(t *testing.T) {
	src := analyzedSource("src-120", 120)
	sess := newTestSession(t)
	// 0.4s 长度 @120bpm: 0.8拍 -> 四舍五入到1拍 = 0.5s
	addPiece(t, sess, src, 2.0, 2.4)

	p := NewPlanner(&fakeResolver{tracks: map[string]*model.SourceTrack{"src-120": src}}, &fakeSuggestions{})

	if _, err := p.LineUpTempo(context.Background(), sess, TempoOptions{Quantize: true}); err != nil {
		t.Fatalf("LineUpTempo 出错: %v", err)
	}

	piece := sess.Pieces()[0]
	if !almostEqual(piece.StartSeconds, 2.0) {
		t.Errorf("量化不应动起点, 实际 %v", piece.StartSeconds)
	}
	if !almostEqual(piece.EndSeconds, 2.5) {
		t.Errorf("量化后终点应为 2.5, 实际 %v", piece.EndSeconds)
	}
}

func TestLineUpTempoUsesSuggestionForUnknownBPM(t *testing.T) {
	src := &model.SourceTrack{ID: "src-raw", DisplayName: "raw.mp3"} // 无分析
	sess := newTestSession(t)
	addPiece(t, sess, src, 0, 8)

	svc := &fakeSuggestions{
		align: map[string]analysis.AlignSuggestion{
			"src-raw": {SourceID: "src-raw", SuggestedSpeed: 1.33},
		},
	}
	p := NewPlanner(&fakeResolver{tracks: map[string]*model.SourceTrack{"src-raw": src}}, svc)

	if _, err := p.LineUpTempo(context.Background(), sess, TempoOptions{}); err != nil {
		t.Fatalf("LineUpTempo 出错: %v", err)
	}

	if got := sess.Pieces()[0].SpeedFactor; !almostEqual(got, 1.33) {
		t.Errorf("缺bpm的源应采用建议变速 1.33, 实际 %v", got)
	}
	if svc.alignCalls != 1 {
		t.Errorf("对齐建议应只请求一次, 实际 %d", svc.alignCalls)
	}
}

func TestLineUpTempoDegradesWhenSuggestionFails(t *testing.T) {
	src := &model.SourceTrack{ID: "src-raw", DisplayName: "raw.mp3"}
	sess := newTestSession(t)
	addPiece(t, sess, src, 0, 8)

	svc := &fakeSuggestions{alignErr: errors.New("service down")}
	p := NewPlanner(&fakeResolver{tracks: map[string]*model.SourceTrack{"src-raw": src}}, svc)

	applied, err := p.LineUpTempo(context.Background(), sess, TempoOptions{})
	if err != nil {
		t.Fatalf("建议失败不应让整个对齐失败: %v", err)
	}
	if applied != 1 {
		t.Fatalf("期望写回1个片段, 实际 %d", applied)
	}
	if got := sess.Pieces()[0].SpeedFactor; !almostEqual(got, 1.0) {
		t.Errorf("兜底变速应为 1.0, 实际 %v", got)
	}
}

func TestLineUpTempoEmptyTimeline(t *testing.T) {
	sess := newTestSession(t)
	svc := &fakeSuggestions{}
	p := NewPlanner(&fakeResolver{}, svc)

	applied, err := p.LineUpTempo(context.Background(), sess, TempoOptions{})
	if err != nil {
		t.Fatalf("空时间线对齐不应出错: %v", err)
	}
	if applied != 0 || svc.alignCalls != 0 {
		t.Error("空时间线不应有任何写回或外呼")
	}
}

func TestMatchPitchResetsAbsentSources(t *testing.T) {
	srcA := analyzedSource("src-a", 120)
	srcB := analyzedSource("src-b", 120)
	sess := newTestSession(t)
	addPiece(t, sess, srcA, 0, 10)
	addPiece(t, sess, srcB, 0, 10)

	svc := &fakeSuggestions{pitch: map[string]int{"src-a": 4}}
	p := NewPlanner(&fakeResolver{tracks: map[string]*model.SourceTrack{"src-a": srcA, "src-b": srcB}}, svc)

	// 先给 src-b 一个旧移调值，验证缺席时会被清掉
	sess.MergePitchSuggestions(map[string]int{"src-a": 1, "src-b": 7})

	if err := p.MatchPitch(context.Background(), sess); err != nil {
		t.Fatalf("MatchPitch 出错: %v", err)
	}

	pieces := sess.Pieces()
	if pieces[0].PitchSemitones != 4 {
		t.Errorf("src-a 应拿到 +4, 实际 %d", pieces[0].PitchSemitones)
	}
	if pieces[1].PitchSemitones != 0 {
		t.Errorf("响应中缺席的 src-b 应归零, 实际 %d", pieces[1].PitchSemitones)
	}
}

func TestMatchPitchServiceError(t *testing.T) {
	src := analyzedSource("src-a", 120)
	sess := newTestSession(t)
	addPiece(t, sess, src, 0, 10)
	sess.MergePitchSuggestions(map[string]int{"src-a": 2})

	svc := &fakeSuggestions{pitchErr: errors.New("service down")}
	p := NewPlanner(&fakeResolver{tracks: map[string]*model.SourceTrack{"src-a": src}}, svc)

	if err := p.MatchPitch(context.Background(), sess); err == nil {
		t.Fatal("服务失败时 MatchPitch 应返回错误")
	}

	// 失败时不应改动任何片段
	if got := sess.Pieces()[0].PitchSemitones; got != 2 {
		t.Errorf("失败的匹配不应改动移调值, 实际 %d", got)
	}
}
