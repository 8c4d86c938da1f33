// Package tasks holds the business operations of the Rep backend.
//
// # Engine
//
// [Engine] is built from [Deps] and exposes three kinds of operation:
//
//  1. Event handlers, invoked for document writes:
//     - [Engine.PlaceClient] : retainer to ISA billing handoff when a client is placed
//     - [Engine.OnApplicationCreate] : advisor assignment and notification emails
//     - [Engine.OnIntakeCreated] : engagement hydration from an intake response
//
//  2. Callable operations, invoked by signed-in portal users:
//     - [Engine.ProvisionClient], [Engine.RepairAccount]
//     - [Engine.SendApplicationResponse], [Engine.GenerateApplicationDraft]
//     - [Engine.SimulateATS]
//
//  3. Data tasks, run from the CLI against the whole store:
//     - [Engine.MigrateStatusToStageID], [Engine.DedupeCompanies], [Engine.BackfillCompanies]
//     - [Engine.FixEngagementUserIDs], [Engine.FixOrphanedPursuits]
//     - [Engine.MigrateOpportunities], [Engine.DeleteLegacyOpportunities]
//     - [Engine.FindDuplicateUsers], [Engine.Inspect]
//
// # Batched Writes
//
// Data tasks write through a [Batcher], which commits every [DefaultBatchLimit] operations,
// starts a new store batch after each commit and paces commits with a rate limiter.
// With [TaskOptions.DryRun] nothing is committed and every intended write is logged.
//
// # Progress Reporting
//
// Data tasks send [ProgressUpdate] values on [TaskOptions.Progress]. Sends use select with
// default and never block the task.
//
// # Run Ledger
//
// Every data task run is recorded through [RunLedger] and every placement handoff through
// [HandoffLedger], both implemented in the repositories package.
package tasks
