// Package resource shares limits between the trees of a process.
//
// A [Controller] bounds three things: the bytes held by node caches, the
// number of concurrent batch kNN traversals, and the page write rate of
// disk page files. Cache reservations never block; when the budget is
// exhausted the cache evicts or skips the node instead. Workers and writes
// block until a slot or tokens are available or the context ends.
//
//	rc := resource.NewController(resource.Config{Workers: 4, CacheBytes: 64 << 20})
//	release, err := rc.Worker(ctx)
//	if err != nil {
//		return err
//	}
//	defer release()
//
// Every method accepts a nil Controller and then imposes no limit.
package resource
