package activities

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker, a *Activities) {
	w.RegisterActivity(a.DiscoverDocumentsActivity)
	w.RegisterActivity(a.PrepareDocumentActivity)
	w.RegisterActivity(a.ExistingChunksActivity)
	w.RegisterActivity(a.EmbedChunksActivity)
	w.RegisterActivity(a.WriteChunksActivity)
	w.RegisterActivity(a.UpdateDocumentStatusActivity)
}
