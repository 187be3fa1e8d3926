package main

import (
	"bytes"
	"testing"

	"policychat/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteStreamEvent(t *testing.T) {
	var buf bytes.Buffer
	events := []model.StreamEvent{
		{Type: model.EventStatus, Agent: model.StageRanking, Message: "정책 우선순위를 계산하고 있습니다..."},
		{Type: model.EventStatus, Agent: model.StageRanking, Message: "우선순위 계산 완료", Complete: true, Warning: true},
		{Type: model.EventContent, Message: "## 추천"},
		{Type: model.EventContent, Message: " 1순위"},
		{Type: model.EventError, Message: "synthesis stream failed"},
	}
	for _, ev := range events {
		require.NoError(t, writeStreamEvent(&buf, ev))
	}

	assert.Equal(t, "… [ranking] 정책 우선순위를 계산하고 있습니다...\n"+
		"! [ranking] 우선순위 계산 완료\n"+
		"## 추천 1순위\n"+
		"! synthesis stream failed\n", buf.String())
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printJSON(&buf, model.ReindexResponse{Rebuilt: true, Indexed: 3, SourceSize: 3, Took: 12}))
	assert.JSONEq(t, `{"rebuilt": true, "indexed": 3, "source_size": 3, "took_ms": 12}`, buf.String())
}
