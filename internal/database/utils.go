package database

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func UpdateBuildJobStatus(ctx context.Context, txn *gorm.DB, jobId uuid.UUID, status string) error {
	updates := map[string]any{"status": status}
	if status == JobCompleted || status == JobFailed {
		updates["completion_time"] = time.Now().UTC()
	}

	if err := txn.WithContext(ctx).Model(&BuildJob{Id: jobId}).Updates(updates).Error; err != nil {
		slog.Error("error updating build job status", "job_id", jobId, "status", status, "error", err)
		return err
	}
	return nil
}

func SaveBuildJobResult(ctx context.Context, txn *gorm.DB, jobId uuid.UUID, messages datatypes.JSON) error {
	updates := map[string]any{
		"status":          JobCompleted,
		"messages":        messages,
		"completion_time": time.Now().UTC(),
	}

	if err := txn.WithContext(ctx).Model(&BuildJob{Id: jobId}).Updates(updates).Error; err != nil {
		slog.Error("error saving build job result", "job_id", jobId, "error", err)
		return err
	}
	return nil
}

func SaveBuildJobError(ctx context.Context, txn *gorm.DB, jobId uuid.UUID, errorMessage string) {
	updates := map[string]any{
		"status":          JobFailed,
		"error":           errorMessage,
		"completion_time": time.Now().UTC(),
	}

	if err := txn.WithContext(ctx).Model(&BuildJob{Id: jobId}).Updates(updates).Error; err != nil {
		slog.Error("error saving build job error", "job_id", jobId, "error", err)
	}
}

func UpdateResearchJobStatus(ctx context.Context, txn *gorm.DB, jobId uuid.UUID, status string) error {
	updates := map[string]any{"status": status}
	if status == JobCompleted || status == JobFailed {
		updates["completion_time"] = time.Now().UTC()
	}

	if err := txn.WithContext(ctx).Model(&ResearchJob{Id: jobId}).Updates(updates).Error; err != nil {
		slog.Error("error updating research job status", "job_id", jobId, "status", status, "error", err)
		return err
	}
	return nil
}

func SaveResearchJobResult(ctx context.Context, txn *gorm.DB, jobId uuid.UUID, resultCount int) error {
	updates := map[string]any{
		"status":          JobCompleted,
		"result_count":    resultCount,
		"completion_time": time.Now().UTC(),
	}

	if err := txn.WithContext(ctx).Model(&ResearchJob{Id: jobId}).Updates(updates).Error; err != nil {
		slog.Error("error saving research job result", "job_id", jobId, "error", err)
		return err
	}
	return nil
}

func SaveResearchJobError(ctx context.Context, txn *gorm.DB, jobId uuid.UUID, errorMessage string) {
	updates := map[string]any{
		"status":          JobFailed,
		"error":           errorMessage,
		"completion_time": time.Now().UTC(),
	}

	if err := txn.WithContext(ctx).Model(&ResearchJob{Id: jobId}).Updates(updates).Error; err != nil {
		slog.Error("error saving research job error", "job_id", jobId, "error", err)
	}
}
