package rtc

import (
	"slices"
	"sort"
	"sync"

	"github.com/HMasataka/meeting/pkg/meeting"
	"github.com/samber/lo"
)

const maxDBov = 127

type audioStream struct {
	uid   string
	sum   int
	total int
}

// AudioObserver はRTPの音量ヘッダー拡張 (dBov) を参加者ごとに集計し、
// 一定間隔で0-100の音量として取り出せるようにします。
// threshold より小さい音 (dBovが大きい) は無音として数えません。
type AudioObserver struct {
	sync.Mutex
	streams   []*audioStream
	threshold uint8
}

func NewAudioObserver(threshold uint8) *AudioObserver {
	if threshold > maxDBov {
		threshold = maxDBov
	}

	return &AudioObserver{threshold: threshold}
}

func (a *AudioObserver) addStream(uid string) {
	a.Lock()
	defer a.Unlock()

	if lo.ContainsBy(a.streams, func(s *audioStream) bool { return s.uid == uid }) {
		return
	}
	a.streams = append(a.streams, &audioStream{uid: uid})
}

func (a *AudioObserver) removeStream(uid string) {
	a.Lock()
	defer a.Unlock()

	a.streams = slices.DeleteFunc(a.streams, func(s *audioStream) bool {
		return s.uid == uid
	})
}

func (a *AudioObserver) observe(uid string, dBov uint8) {
	a.Lock()
	defer a.Unlock()

	for _, as := range a.streams {
		if as.uid != uid {
			continue
		}

		if dBov <= a.threshold {
			as.sum += int(dBov)
			as.total++
		}

		return
	}
}

// sortStreamsByActivity は音声ストリームを活動レベル順にソートします (total降順、sum昇順)
func (a *AudioObserver) sortStreamsByActivity(streams []*audioStream) []*audioStream {
	sort.SliceStable(streams, func(i, j int) bool {
		si, sj := streams[i], streams[j]

		if si.total != sj.total {
			return si.total > sj.total
		}

		return si.sum < sj.sum
	})

	return streams
}

// Levels は前回の呼び出し以降の平均音量を活動順に返し、集計をリセットします。
func (a *AudioObserver) Levels() []meeting.VolumeLevel {
	a.Lock()
	defer a.Unlock()

	a.streams = a.sortStreamsByActivity(a.streams)

	levels := make([]meeting.VolumeLevel, 0, len(a.streams))
	for _, stream := range a.streams {
		level := 0
		if stream.total > 0 {
			level = levelFromDBov(uint8(stream.sum / stream.total))
		}
		levels = append(levels, meeting.VolumeLevel{UID: stream.uid, Level: level})

		stream.total = 0
		stream.sum = 0
	}

	return levels
}

// levelFromDBov は0 (最大) から127 (無音) のdBovを0-100の音量に変換します。
func levelFromDBov(dBov uint8) int {
	if dBov > maxDBov {
		dBov = maxDBov
	}
	return int(maxDBov-dBov) * 100 / maxDBov
}
