package repository

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/okian/zen/internal/domain/model"
)

func BenchmarkBoardSet(b *testing.B) {
	bd := newBoard()
	ids := make([]string, 10_000)
	for i := range ids {
		ids[i] = "u" + strconv.Itoa(i)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		bd.set(ids[i%len(ids)], int64(i))
	}
}

func BenchmarkBoardTop(b *testing.B) {
	bd := newBoard()
	for i := 0; i < 100_000; i++ {
		bd.set("u"+strconv.Itoa(i), int64(i%5_000))
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = bd.top(100)
	}
}

func BenchmarkApplyReputationParallel(b *testing.B) {
	ctx := context.Background()
	s := NewMemoryStore(ctx)
	defer s.Close()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			i++
			_, _ = s.ApplyReputation(ctx, &model.ReputationGrant{
				ID: uuid.New(), ServerID: "s1", GiverID: "g", ReceiverID: "r" + strconv.Itoa(i%1000),
				Amount: 1, At: time.Now(),
			})
		}
	})
}
