package natsbus

import "fmt"

// Topic patterns for NATS pub/sub communication.

func TopicTeamBroadcast(team string) string {
	return fmt.Sprintf("team.%s.all", team)
}

func TopicTeamAgent(team, agentID string) string {
	return fmt.Sprintf("team.%s.agent.%s", team, agentID)
}

func TopicTeamEvents(team string) string {
	return fmt.Sprintf("events.team.%s", team)
}

func TopicControl(team string) string {
	return fmt.Sprintf("convoy.ctl.%s", team)
}

const TopicEventsAll = "events.>"
