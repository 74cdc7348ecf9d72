package mediacache_test

import (
	"context"
	"fmt"

	"github.com/hupe1980/mediacache"
	"github.com/hupe1980/mediacache/cache"
	"github.com/hupe1980/mediacache/optimize"
	"github.com/hupe1980/mediacache/scheduler"
)

func Example() {
	ctx := context.Background()

	// A real application would use the default HTTP loader; the example
	// substitutes a canned one so the output is stable.
	loader := scheduler.LoaderFunc(func(ctx context.Context, url string) (cache.Payload, error) {
		return cache.Payload{Data: []byte("fake image bytes")}, nil
	})

	engine := mediacache.New(
		mediacache.WithLoader(loader),
		mediacache.WithConnectionSpeed(optimize.SpeedFast),
	)
	defer engine.Close()

	results, err := engine.Preload(ctx, []string{"https://example.com/photo.jpg"}, 1)
	if err != nil {
		panic(err)
	}

	fmt.Println("success:", results[0].Success)
	fmt.Println("cached:", engine.IsCached("https://example.com/photo.jpg"))
	// Output:
	// success: true
	// cached: true
}

func Example_optimize() {
	engine := mediacache.New(
		mediacache.WithLoader(scheduler.LoaderFunc(func(ctx context.Context, url string) (cache.Payload, error) {
			return cache.Payload{}, nil
		})),
		mediacache.WithOptimizeOptions(optimize.Options{Width: 320, Mobile: true}),
	)
	defer engine.Close()

	res := engine.Optimize("https://lemmy.world/pictrs/image/abcd.jpg")

	fmt.Println("rewritten:", res.Rewritten())
	fmt.Println("url:", res.OptimizedURL)
	// Output:
	// rewritten: true
	// url: https://lemmy.world/pictrs/image/abcd.jpg?format=webp&quality=75&width=320
}
