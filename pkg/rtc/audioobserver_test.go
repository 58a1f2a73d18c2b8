package rtc

import (
	"sync"
	"testing"

	"github.com/HMasataka/meeting/pkg/meeting"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAudioObserver(t *testing.T) {
	t.Run("基本的な初期化", func(t *testing.T) {
		ao := NewAudioObserver(50)

		require.NotNil(t, ao)
		assert.Equal(t, uint8(50), ao.threshold)
		assert.Empty(t, ao.streams)
	})

	t.Run("閾値の上限クランプ", func(t *testing.T) {
		assert.Equal(t, uint8(127), NewAudioObserver(127).threshold)
		assert.Equal(t, uint8(127), NewAudioObserver(128).threshold)
		assert.Equal(t, uint8(127), NewAudioObserver(255).threshold)
	})
}

func TestAudioObserver_Streams(t *testing.T) {
	t.Run("同じ参加者は一度だけ追加される", func(t *testing.T) {
		ao := NewAudioObserver(127)

		ao.addStream("alice")
		ao.addStream("alice")
		ao.addStream("bob")

		assert.Len(t, ao.streams, 2)
	})

	t.Run("削除した参加者は報告されない", func(t *testing.T) {
		ao := NewAudioObserver(127)
		ao.addStream("alice")
		ao.addStream("bob")

		ao.removeStream("alice")

		levels := ao.Levels()
		require.Len(t, levels, 1)
		assert.Equal(t, "bob", levels[0].UID)
	})

	t.Run("未登録の参加者の観測は無視される", func(t *testing.T) {
		ao := NewAudioObserver(127)

		ao.observe("ghost", 10)

		assert.Empty(t, ao.Levels())
	})
}

func TestAudioObserver_Levels(t *testing.T) {
	t.Run("平均dBovを音量に変換する", func(t *testing.T) {
		ao := NewAudioObserver(127)
		ao.addStream("alice")

		ao.observe("alice", 0)
		ao.observe("alice", 20)

		levels := ao.Levels()
		require.Len(t, levels, 1)
		assert.Equal(t, meeting.VolumeLevel{UID: "alice", Level: levelFromDBov(10)}, levels[0])
	})

	t.Run("閾値より小さい音は数えない", func(t *testing.T) {
		ao := NewAudioObserver(40)
		ao.addStream("alice")

		ao.observe("alice", 41)
		ao.observe("alice", 100)

		levels := ao.Levels()
		require.Len(t, levels, 1)
		assert.Equal(t, 0, levels[0].Level)
	})

	t.Run("活動量の多い順に並ぶ", func(t *testing.T) {
		ao := NewAudioObserver(127)
		ao.addStream("quiet")
		ao.addStream("loud")
		ao.addStream("silent")

		ao.observe("quiet", 60)
		ao.observe("loud", 10)
		ao.observe("loud", 10)

		levels := ao.Levels()
		require.Len(t, levels, 3)
		assert.Equal(t, "loud", levels[0].UID)
		assert.Equal(t, "quiet", levels[1].UID)
		assert.Equal(t, "silent", levels[2].UID)
	})

	t.Run("取り出すと集計がリセットされる", func(t *testing.T) {
		ao := NewAudioObserver(127)
		ao.addStream("alice")
		ao.observe("alice", 0)

		first := ao.Levels()
		second := ao.Levels()

		assert.Equal(t, 100, first[0].Level)
		assert.Equal(t, 0, second[0].Level)
	})

	t.Run("並行して観測できる", func(t *testing.T) {
		ao := NewAudioObserver(127)
		ao.addStream("alice")

		var wg sync.WaitGroup
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range 100 {
					ao.observe("alice", 30)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1000, ao.streams[0].total)
	})
}

func TestLevelFromDBov(t *testing.T) {
	testCases := []struct {
		dBov     uint8
		expected int
	}{
		{0, 100},
		{127, 0},
		{200, 0},
		{27, 78},
		{64, 49},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, levelFromDBov(tc.dBov), "dBov=%d", tc.dBov)
	}
}
