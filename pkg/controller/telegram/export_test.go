package telegram

var ParseUpdate = parseUpdate
