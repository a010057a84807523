package idempotency_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/ticketbay/settlement/internal/idempotency"
)

func TestGetSetRoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	defer mr.Close()
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()

	idemp := idempotency.New(client, time.Hour)
	ctx := context.Background()

	got, err := idemp.Get(ctx, "key-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatalf("unseen key returned %+v", got)
	}

	want := idempotency.Response{Status: 200, Result: []byte(`{"message":"Payment verified","success":true}`)}
	if err := idemp.Set(ctx, "key-1", want); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err = idemp.Get(ctx, "key-1")
	if err != nil {
		t.Fatalf("get after set: %v", err)
	}
	if got == nil || got.Status != 200 || string(got.Result) != string(want.Result) {
		t.Errorf("replay = %+v, want %+v", got, want)
	}
}

func TestStoredResponseExpires(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	defer mr.Close()
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()

	idemp := idempotency.New(client, time.Minute)
	ctx := context.Background()

	if err := idemp.Set(ctx, "key-2", idempotency.Response{Status: 200}); err != nil {
		t.Fatal(err)
	}
	mr.FastForward(2 * time.Minute)

	got, err := idemp.Get(ctx, "key-2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Errorf("expired key returned %+v", got)
	}
}
