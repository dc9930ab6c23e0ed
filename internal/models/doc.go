// Package models defines domain entities and persistence interfaces for bidshelf.
//
// The package contains two categories of types:
//
// 1. Persistent Entities: Database-backed models with full lifecycle management
//   - [Dataset] : A registered dataset with its acquisition state
//   - [TaskRecord] : The status row of a background acquisition job
//
// 2. Messages: Values passed between the web process and the worker
//   - [Job] : Work description for one acquisition (unpack, copy, download)
//   - [TaskStatus] : What the worker reports for a task id
//
// [State] is the closed set of lifecycle states shared by datasets and tasks.
// The Repository[T] interface defines standard CRUD operations for database access.
package models
