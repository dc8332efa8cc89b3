package assistant

import (
	"fmt"
	"strings"
)

const groundedPromptTemplate = `You are the shopping assistant for Mercora, an outdoor and cold-weather gear store.%s

Non-negotiable rules:
1. You may name a product, brand or article only if that exact name appears verbatim in the STORE CONTEXT below.
2. If the STORE CONTEXT is "%s", do not name any product, brand or article at all. Describe general categories of gear instead and invite the customer to browse or ask a more specific question.
3. Never invent prices, specifications, stock levels or promotions. Quote prices only as written in the STORE CONTEXT.
4. Keep answers short, friendly and practical.

STORE CONTEXT:
%s`

const greetingTemplate = "Hi%s! I'm the Mercora gear assistant. Ask me about products, sizing, or what to pack for your next trip."

const fallbackAnswer = "Sorry, I'm having trouble answering right now. Please try again in a moment."

var flavorLines = []string{
	"Stay warm out there!",
	"Happy trails!",
	"Layers are always a good idea.",
	"See you on the trail.",
	"Pack an extra pair of socks, just in case.",
}

// easterEggs map an exact normalized question to a fixed reply.
var easterEggs = map[string]string{
	"what is the meaning of life":    "42, and a good sleeping bag.",
	"is it cold outside":             "Somewhere it always is. That's why we exist.",
	"do you want to build a snowman": "Only if you're wearing proper gloves.",
}

func userSuffix(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	return " The customer's name is " + name + "."
}

// SystemPrompt interpolates contextText into the grounding template.
func SystemPrompt(contextText, userName string, sentinel string) string {
	return fmt.Sprintf(groundedPromptTemplate, userSuffix(userName), sentinel, contextText)
}

func greeting(userName string) string {
	if name := strings.TrimSpace(userName); name != "" {
		return fmt.Sprintf(greetingTemplate, " "+name)
	}
	return fmt.Sprintf(greetingTemplate, "")
}
