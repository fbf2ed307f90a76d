package main

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/rl1809/cart-store/internal/adapter/storage"
	"github.com/rl1809/cart-store/internal/core/domain"
	"github.com/rl1809/cart-store/internal/core/service"
)

const (
	redisAddr        = "localhost:6379"
	sharedIdentity   = "stress-shared"
	sessionsPerUser  = 50
	distinctUsers    = 50
	addsPerSession   = 5
	checkoutAttempts = 20
	queueSize        = 100
)

var product = domain.Product{
	ID:       1,
	Name:     "Stress Widget",
	Price:    decimal.RequireFromString("9.99"),
	Category: "test",
}

func main() {
	ctx := context.Background()

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer rdb.Close()

	// Clear previous test data
	keys, _ := rdb.Keys(ctx, "cart_stress-*").Result()
	keys = append(keys, mustKeys(ctx, rdb, "checkout:stress-*")...)
	for _, k := range keys {
		rdb.Del(ctx, k)
	}

	redisAdapter := storage.NewRedisAdapter(rdb)

	sharedCount, sharedElapsed := runSharedSessions(ctx, redisAdapter)
	isolated, isolatedElapsed := runDistinctUsers(ctx, redisAdapter)
	accepted := runDuplicateCheckouts(ctx, redisAdapter)

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Shared sessions:     %d x %d adds\n", sessionsPerUser, addsPerSession)
	fmt.Printf("Shared final count:  %d (of %d attempted)\n", sharedCount, sessionsPerUser*addsPerSession)
	fmt.Printf("Shared duration:     %v\n", sharedElapsed)
	fmt.Printf("Distinct users:      %d (%d correct)\n", distinctUsers, isolated)
	fmt.Printf("Distinct duration:   %v\n", isolatedElapsed)
	fmt.Printf("Checkout attempts:   %d (%d accepted)\n", checkoutAttempts, accepted)
	fmt.Println("==========================================")

	// The slot's last write is some session's final add, made on top of
	// whatever that session loaded, so at least addsPerSession items survive.
	// Anything short of the full total was overwritten.
	attempted := sessionsPerUser * addsPerSession
	switch {
	case sharedCount < addsPerSession || sharedCount > attempted:
		fmt.Printf("FAIL: shared identity ended with %d items, expected %d..%d\n", sharedCount, addsPerSession, attempted)
	case sharedCount < attempted:
		fmt.Printf("PASS: last write wins, %d of %d adds overwritten\n", attempted-sharedCount, attempted)
	default:
		fmt.Println("PASS: sessions happened to run one after another, nothing overwritten")
	}

	if isolated == distinctUsers {
		fmt.Println("PASS: every distinct identity kept its own cart")
	} else {
		fmt.Printf("FAIL: expected %d isolated carts, got %d\n", distinctUsers, isolated)
	}

	if accepted == 1 {
		fmt.Println("PASS: exactly one checkout accepted per request id")
	} else {
		fmt.Printf("FAIL: expected 1 accepted checkout, got %d\n", accepted)
	}
}

func mustKeys(ctx context.Context, rdb *redis.Client, pattern string) []string {
	keys, _ := rdb.Keys(ctx, pattern).Result()
	return keys
}

// runSharedSessions opens many sessions for one identity at once. Each loads
// the slot, adds items and persists, so only the last writer survives.
func runSharedSessions(ctx context.Context, adapter *storage.RedisAdapter) (int, time.Duration) {
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < sessionsPerUser; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store := service.NewCartStore(ctx, adapter, sharedIdentity)
			for j := 0; j < addsPerSession; j++ {
				store.AddItem(ctx, product)
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	final := service.NewCartStore(ctx, adapter, sharedIdentity)
	return final.TotalItemCount(), elapsed
}

func runDistinctUsers(ctx context.Context, adapter *storage.RedisAdapter) (int, time.Duration) {
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < distinctUsers; i++ {
		wg.Add(1)
		go func(userID int) {
			defer wg.Done()
			store := service.NewCartStore(ctx, adapter, fmt.Sprintf("stress-user-%d", userID))
			for j := 0; j <= userID%addsPerSession; j++ {
				store.AddItem(ctx, product)
			}
		}(i)
	}
	wg.Wait()
	elapsed := time.Since(start)

	correct := 0
	for i := 0; i < distinctUsers; i++ {
		store := service.NewCartStore(ctx, adapter, fmt.Sprintf("stress-user-%d", i))
		if store.TotalItemCount() == i%addsPerSession+1 {
			correct++
		}
	}
	return correct, elapsed
}

// runDuplicateCheckouts retries one checkout request concurrently.
func runDuplicateCheckouts(ctx context.Context, adapter *storage.RedisAdapter) int32 {
	checkout := service.NewCheckoutService(adapter, queueSize)
	defer checkout.Close()

	// Drain the receipt queue in background
	go func() {
		for range checkout.Receipts() {
		}
	}()

	requestID := fmt.Sprintf("req-%d", time.Now().UnixNano())
	var accepted atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < checkoutAttempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// No slot store: each attempt carries its own in-memory cart
			store := service.NewCartStore(ctx, nil, "stress-checkout")
			store.AddItem(ctx, product)
			if _, err := checkout.Checkout(ctx, requestID, store); err == nil {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()
	return accepted.Load()
}
