package service

import "github.com/tracelify/tracelify/internal/domain"

// Assemble pairs generated text with the chunks that were offered as context.
// Every retrieved chunk id appears once, in rank order; a chunk id repeated
// by the store keeps its first (best ranked) position.
func Assemble(results []domain.RetrievalResult, answer string) domain.CitedAnswer {
	out := domain.CitedAnswer{
		Answer:    answer,
		Citations: make([]string, 0, len(results)),
		Sources:   make([]domain.Citation, 0, len(results)),
	}

	seen := make(map[string]struct{}, len(results))
	for _, r := range results {
		if _, dup := seen[r.Chunk.ID]; dup {
			continue
		}
		seen[r.Chunk.ID] = struct{}{}

		out.Citations = append(out.Citations, r.Chunk.ID)
		out.Sources = append(out.Sources, domain.Citation{
			ChunkID:  r.Chunk.ID,
			DocID:    r.Chunk.DocID,
			Index:    r.Chunk.Index,
			Rank:     r.Rank,
			Score:    r.Score,
			Filename: r.Chunk.Metadata[domain.MetaFilename],
			Start:    r.Chunk.Start,
			End:      r.Chunk.End,
		})
	}
	return out
}
