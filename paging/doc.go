// Package paging provides cursor-based pagination over listings ordered
// newest first.
//
// Cursors are opaque base64 strings wrapping a timestamp and the id of the
// last item, so items sharing a timestamp are not skipped at a page
// boundary:
//
//	page, err := paging.Paginate(ctx, params, fetch, func(b *Batch) paging.Cursor {
//	    return paging.Cursor{At: b.CreatedAt, ID: b.ID}
//	})
package paging
