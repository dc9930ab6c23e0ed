// Package tasks runs dataset acquisition in the background and keeps dataset records in step with it.
//
// # Reconciliation
//
// [Reconciler] is applied to every dataset that is read:
//
//  1. A dataset with a task in a terminal state is returned untouched, without a status query.
//  2. A dataset with a task in PENDING or STARTED asks the [StatusOracle] (bounded by a timeout)
//     and persists whatever state it reports. On SUCCESS an empty folder is filled from the result.
//  3. A dataset without a task is forced to SUCCESS.
//
// Each record gets its own [Outcome]; one failing status query never hides the others.
// Status query failures wrap [shared.ErrTransientWorker] and leave the stored state alone.
//
// # Execution
//
// [Dispatcher] implements [Submitter]: it writes a PENDING task row and hands the job to a [Transport],
// either the in-process [Pool] or the RabbitMQ publisher in package queue. Whoever receives the job runs
// it through an [Executor], which moves the task row through STARTED to SUCCESS or FAILURE.
//
// # Handlers
//
//   - [ArchiveUnpacker] : zip, tar, tar.gz and 7z uploads
//   - [FolderCopier] : copies a local folder into managed storage
//   - [OpenNeuroFetcher] : downloads a dataset from the OpenNeuro S3 bucket
//
// Handlers report [ProgressUpdate] values on a channel; sends never block.
package tasks
