package model

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Job is published once per stored artifact for the external analysis worker.
// Its wire form is {"uid":"<sid>","image_name":"<key>"}; ID travels as
// transport metadata, not in the payload.
type Job struct {
	ID        string `json:"-"`
	UID       string `json:"uid"`
	ImageName string `json:"image_name"`
}

// NewJob builds the job for an artifact stored under sid.
func NewJob(sid SessionID, key string) Job {
	return Job{ID: uuid.NewString(), UID: string(sid), ImageName: key}
}

// Session returns the job's session id.
func (j Job) Session() SessionID { return SessionID(j.UID) }

// Encode serializes the job payload.
func (j Job) Encode() ([]byte, error) {
	return json.Marshal(j)
}

// DecodeJob parses a job payload and checks that both fields are present.
func DecodeJob(data []byte) (Job, error) {
	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return Job{}, fmt.Errorf("decode job: %w", err)
	}
	if j.UID == "" || j.ImageName == "" {
		return Job{}, Validationf("job missing uid or image_name")
	}
	return j, nil
}
