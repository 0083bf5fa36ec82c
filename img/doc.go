// Package img backs large n-dimensional images with a cell cache.
//
// A Grid splits the image into cells. Cells are loaded on demand by a
// LoadedCellCacheLoader and kept in a cache.Cache (CachedCellImg) or a
// cache volatile layer (VolatileCachedCellImg). Cells modified through the
// image are marked dirty and are written back by the cache's remover before
// they are discarded; CellCodec gives stores a compact binary form.
//
//	grid, _ := img.NewGrid([]int64{4096, 4096}, []int{256, 256})
//	loader := img.NewLoadedCellCacheLoader[float32](grid, fill, img.Dirty)
//	store, _ := diskstore.New(diskstore.Options[int64, *img.Cell[float32]]{
//		Codec:    img.CellCodec[float32]{Flags: img.Dirty},
//		Fallback: loader,
//	})
//	c := cache.New[int64, *img.Cell[float32]](cache.Options[int64, *img.Cell[float32]]{Capacity: 64})
//	image := img.NewCachedCellImg(grid, cache.WithLoader(cache.WithRemovalListener(c, store), store))
package img
