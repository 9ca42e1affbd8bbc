package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"promptx/pkg/api"
	"time"
)

const baseURL = "http://localhost:3001/api/v1"

func createWorkspace(name string) (string, error) {
	jsonData, err := json.Marshal(api.CreateWorkspaceRequest{Name: name})
	if err != nil {
		return "", fmt.Errorf("error marshaling request: %v", err)
	}

	// Create the request
	req, err := http.NewRequest("POST", baseURL+"/workspaces", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("error creating request: %v", err)
	}

	// Set headers
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	// Send the request
	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("error making request: %v", err)
	}
	defer resp.Body.Close()

	// Read the response
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading response: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("error creating workspace: status %d, body: %s", resp.StatusCode, string(body))
	}

	// Parse the response
	var created api.CreateWorkspaceResponse
	if err := json.Unmarshal(body, &created); err != nil {
		return "", fmt.Errorf("error unmarshaling response: %v", err)
	}

	return created.WorkspaceId.String(), nil
}

func uploadArtifact(workspaceID, name string, content any) error {
	jsonData, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("error marshaling artifact: %v", err)
	}

	// Create the request
	req, err := http.NewRequest("PUT", fmt.Sprintf("%s/workspaces/%s/artifacts/%s", baseURL, workspaceID, name), bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("error creating request: %v", err)
	}

	// Set headers
	req.Header.Set("Content-Type", "application/json")

	// Send the request
	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("error making request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("error uploading artifact: status %d, body: %s", resp.StatusCode, string(body))
	}

	return nil
}

func submitBuild(workspaceID string) (string, error) {
	// Create the request
	req, err := http.NewRequest("POST", fmt.Sprintf("%s/workspaces/%s/builds", baseURL, workspaceID), nil)
	if err != nil {
		return "", fmt.Errorf("error creating request: %v", err)
	}

	// Set headers
	req.Header.Set("Accept", "application/json")

	// Send the request
	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("error making request: %v", err)
	}
	defer resp.Body.Close()

	// Read the response
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading response: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("error submitting build: status %d, body: %s", resp.StatusCode, string(body))
	}

	// Parse the response
	var submitted api.SubmitBuildResponse
	if err := json.Unmarshal(body, &submitted); err != nil {
		return "", fmt.Errorf("error unmarshaling response: %v", err)
	}

	return submitted.JobId.String(), nil
}

func getBuildJob(workspaceID, jobID string) (api.BuildJob, error) {
	// Create the request
	req, err := http.NewRequest("GET", fmt.Sprintf("%s/workspaces/%s/builds/%s", baseURL, workspaceID, jobID), nil)
	if err != nil {
		return api.BuildJob{}, fmt.Errorf("error creating request: %v", err)
	}

	// Set headers
	req.Header.Set("Accept", "application/json")

	// Send the request
	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return api.BuildJob{}, fmt.Errorf("error making request: %v", err)
	}
	defer resp.Body.Close()

	// Read the response
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return api.BuildJob{}, fmt.Errorf("error reading response: %v", err)
	}

	// Parse the response
	var job api.BuildJob
	if err := json.Unmarshal(body, &job); err != nil {
		return api.BuildJob{}, fmt.Errorf("error unmarshaling response: %v", err)
	}

	return job, nil
}

func downloadPayload(workspaceID string) (string, error) {
	// Create the request
	req, err := http.NewRequest("GET", fmt.Sprintf("%s/workspaces/%s/artifacts/final_prompt.json", baseURL, workspaceID), nil)
	if err != nil {
		return "", fmt.Errorf("error creating request: %v", err)
	}

	// Send the request
	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("error making request: %v", err)
	}
	defer resp.Body.Close()

	// Read the response
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading response: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("error downloading payload: status %d, body: %s", resp.StatusCode, string(body))
	}

	return string(body), nil
}

func main() {
	workspaceID, err := createWorkspace(fmt.Sprintf("workflow-%d", time.Now().Unix()))
	if err != nil {
		log.Fatalf("Error creating workspace: %v", err)
	}
	fmt.Printf("Created workspace %s\n", workspaceID)

	analysis := api.Analysis{
		Task:       "extract action items from meeting notes",
		Goal:       "list every commitment with an owner and a deadline",
		Constraint: "only include items stated explicitly in the notes",
		Output: api.OutputSpec{
			Type:   "json",
			Notion: "array of {owner, item, due} objects",
		},
	}

	testData := api.TestData{
		Dataset: []api.TestDataItem{
			{
				Input:  "Alice said she'll send the Q3 numbers by Friday.",
				Output: `{"items":[{"owner":"Alice","item":"send the Q3 numbers","due":"Friday"}]}`,
			},
			{
				Input:  "No decisions today, we'll regroup next week.",
				Output: `{"items":[]}`,
			},
		},
	}

	if err := uploadArtifact(workspaceID, "analysis.json", analysis); err != nil {
		log.Fatalf("Error uploading analysis: %v", err)
	}
	if err := uploadArtifact(workspaceID, "test_data.json", testData); err != nil {
		log.Fatalf("Error uploading test data: %v", err)
	}
	fmt.Println("Uploaded workspace artifacts")

	jobID, err := submitBuild(workspaceID)
	if err != nil {
		log.Fatalf("Error submitting build: %v", err)
	}
	fmt.Printf("Submitted build job %s\n", jobID)

	for i := 0; i < 60; i++ {
		job, err := getBuildJob(workspaceID, jobID)
		if err != nil {
			log.Fatalf("Error polling build job: %v", err)
		}

		if job.Status == "COMPLETED" {
			payload, err := downloadPayload(workspaceID)
			if err != nil {
				log.Fatalf("Error downloading payload: %v", err)
			}
			fmt.Printf("Payload:\n%s\n", payload)
			return
		}

		if job.Status == "FAILED" {
			log.Fatalf("Build job failed: %s", job.Error)
		}

		time.Sleep(500 * time.Millisecond)
	}

	log.Fatalf("Build job did not complete in time")
}
