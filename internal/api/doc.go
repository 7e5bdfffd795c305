// Package api is the harness's client for the bid-evaluation pipeline.
//
// Usage:
//
//	client, err := api.New(apiBase, "tenant_demo", api.WithTimeout(30*time.Second))
//	up, err := client.UploadDocument(ctx, api.Upload{ProjectID: "prj_e2e", ...})
//	_, err = client.RunJob(ctx, up.JobID)
//	ev, err := client.CreateEvaluation(ctx, req)
//	report, err := client.GetReport(ctx, ev.EvaluationID)
//
// Every call carries x-tenant-id and a fresh x-trace-id. Mutating calls carry
// an Idempotency-Key; pass WithIdempotencyKey to redeliver the same logical
// call. Failures come back as *TransportError or *ApplicationError and are
// never retried.
package api
